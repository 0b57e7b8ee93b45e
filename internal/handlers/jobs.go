package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/gavincwyant/traintrack/internal/ledger"
	"github.com/gavincwyant/traintrack/pkg/config"
	"github.com/gavincwyant/traintrack/pkg/kafka"
	"github.com/gavincwyant/traintrack/pkg/logging"
	"github.com/gavincwyant/traintrack/pkg/models"
)

// JobManager handles background billing jobs
type JobManager struct {
	db            *sql.DB
	logger        logging.Logger
	engine        *ledger.Engine
	kafkaConsumer *kafka.Consumer
	stopCh        chan struct{}
	sessionTopic  string
}

// NewJobManager creates a new job manager. Kafka is optional: without
// KAFKA_BROKERS the consumer stays disabled and deductions arrive over HTTP
// only.
func NewJobManager(database *sql.DB, log logging.Logger, billingEngine *ledger.Engine) *JobManager {
	sessionTopic := config.GetEnv("SESSION_EVENTS_TOPIC", "scheduling.session_events")

	var consumer *kafka.Consumer
	if brokerList := config.GetEnv("KAFKA_BROKERS", ""); brokerList != "" {
		brokers := strings.Split(brokerList, ",")
		clientID := config.GetEnv("KAFKA_CLIENT_ID", "bursar")
		groupID := config.GetEnv("KAFKA_GROUP_ID", "bursar-billing")

		var err error
		consumer, err = kafka.NewConsumer(brokers, groupID, clientID, log)
		if err != nil {
			log.WithError(err).Error("Failed to create Kafka consumer for session events")
			// Allow the API to start without the consumer.
			consumer = nil
		}
	}

	return &JobManager{
		db:            database,
		logger:        log,
		engine:        billingEngine,
		kafkaConsumer: consumer,
		stopCh:        make(chan struct{}),
		sessionTopic:  sessionTopic,
	}
}

// KafkaClient exposes the underlying consumer client for health checks.
// Returns nil when the consumer is disabled.
func (jm *JobManager) KafkaClient() *kgo.Client {
	if jm.kafkaConsumer == nil {
		return nil
	}
	return jm.kafkaConsumer.GetClient()
}

// Start begins all background jobs
func (jm *JobManager) Start(ctx context.Context) {
	jm.logger.Info("Starting billing job manager")

	if jm.kafkaConsumer != nil {
		jm.kafkaConsumer.AddHandler(jm.sessionTopic, jm.handleSessionEvent)
		go func() {
			if err := jm.kafkaConsumer.Start(ctx); err != nil {
				jm.logger.WithError(err).Error("Kafka consumer exited with error")
			}
		}()
	}

	go jm.runLowBalanceScan(ctx)
}

// Stop stops all background jobs
func (jm *JobManager) Stop() {
	jm.logger.Info("Stopping billing job manager")
	if jm.kafkaConsumer != nil {
		jm.kafkaConsumer.Close()
	}
	close(jm.stopCh)
}

// handleSessionEvent consumes session lifecycle events and bills completed
// sessions. Transient failures are returned so the message is redelivered;
// anything else is logged and skipped to keep the partition moving.
func (jm *JobManager) handleSessionEvent(ctx context.Context, msg kafka.Message) error {
	var event models.SessionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		jm.logger.WithError(err).Error("Failed to unmarshal session event")
		return nil // Skip bad message
	}

	if event.EventType != models.SessionEventCompleted {
		return nil
	}

	outcome, err := jm.engine.DeductSession(ctx, event.SessionID)
	if err != nil {
		if ledger.IsRetryable(err) {
			return err
		}
		jm.logger.WithError(err).WithFields(logging.Fields{
			"session_id":   event.SessionID,
			"workspace_id": event.WorkspaceID,
		}).Error("Failed to bill completed session")
		return nil
	}

	if outcome.Success {
		countDeduction("full")
	} else {
		countDeduction("partial")
	}

	if outcome.ShouldGenerateInvoice {
		invoice, err := jm.engine.GenerateTopUpInvoice(ctx, event.WorkspaceID, event.ClientID, event.TrainerID)
		if err != nil {
			jm.logger.WithError(err).WithFields(logging.Fields{
				"session_id": event.SessionID,
				"client_id":  event.ClientID,
			}).Warn("Failed to generate top-up invoice after partial deduction")
			return nil
		}
		if invoice != nil {
			countInvoice("generate", "success")
			jm.logger.WithFields(logging.Fields{
				"invoice_id":   invoice.ID,
				"amount_cents": invoice.AmountCents,
			}).Info("Top-up invoice generated from session event")
		}
	}

	return nil
}

// runLowBalanceScan periodically surfaces prepaid clients whose balance ran
// dry so trainers notice before the next session.
func (jm *JobManager) runLowBalanceScan(ctx context.Context) {
	interval := config.GetEnvDuration("LOW_BALANCE_SCAN_INTERVAL", 24*time.Hour)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.scanLowBalances()
		}
	}
}

func (jm *JobManager) scanLowBalances() {
	rows, err := jm.db.Query(`
		SELECT DISTINCT workspace_id FROM bursar.client_billing_profiles
		WHERE billing_mode = 'prepaid'
	`)
	if err != nil {
		jm.logger.WithError(err).Error("Failed to list prepaid workspaces")
		return
	}
	defer rows.Close()

	var workspaces []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			jm.logger.WithError(err).Error("Failed to scan workspace id")
			return
		}
		workspaces = append(workspaces, id)
	}
	if err := rows.Err(); err != nil {
		jm.logger.WithError(err).Error("Failed to read prepaid workspaces")
		return
	}

	for _, workspaceID := range workspaces {
		summaries, err := jm.engine.GetPrepaidClientsSummary(workspaceID, "")
		if err != nil {
			jm.logger.WithError(err).WithField("workspace_id", workspaceID).Error("Failed to build prepaid summary")
			continue
		}
		for _, summary := range summaries {
			if summary.BalanceStatus == models.BalanceStatusHealthy {
				continue
			}
			jm.logger.WithFields(logging.Fields{
				"workspace_id":  workspaceID,
				"client_id":     summary.ClientID,
				"balance_cents": summary.BalanceCents,
				"status":        summary.BalanceStatus,
			}).Warn("Prepaid balance needs attention")
		}
	}
}
