package ledger

import (
	"database/sql"
	"time"

	"github.com/gavincwyant/traintrack/pkg/config"
	"github.com/gavincwyant/traintrack/pkg/logging"
)

// Group-matching strategies for classifying a session as a group session.
const (
	GroupMatchExactStart = "exact_start"
	GroupMatchOverlap    = "overlap"
)

// Config controls retry behaviour and group-session detection.
type Config struct {
	MaxRetries         int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	GroupMatchStrategy string
}

// DefaultConfig returns engine configuration from the environment.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         config.GetEnvInt("DEDUCT_MAX_RETRIES", 6),
		RetryBaseDelay:     config.GetEnvDuration("DEDUCT_RETRY_BASE_DELAY", 50*time.Millisecond),
		RetryMaxDelay:      config.GetEnvDuration("DEDUCT_RETRY_MAX_DELAY", 2*time.Second),
		GroupMatchStrategy: config.GetEnv("GROUP_MATCH_STRATEGY", GroupMatchExactStart),
	}
}

// Engine is the prepaid balance ledger and session billing engine. All
// balance mutations go through one of its transactional operations; nothing
// else is allowed to read-then-write balance_cents.
type Engine struct {
	db     *sql.DB
	logger logging.Logger
	cfg    Config
}

// NewEngine creates a billing engine backed by the given database.
func NewEngine(db *sql.DB, logger logging.Logger, cfg Config) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 6
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 50 * time.Millisecond
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = 2 * time.Second
	}
	if cfg.GroupMatchStrategy == "" {
		cfg.GroupMatchStrategy = GroupMatchExactStart
	}
	return &Engine{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}
}
