package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catalog-import-service/internal/models"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

const (
	StreamCatalog         = "CATALOG_EVENTS"
	SubjectImportFinished = "catalog.import.completed"
)

// ImportCompletedEvent is published once per finished import job.
type ImportCompletedEvent struct {
	EventID      string    `json:"eventId"`
	EventType    string    `json:"eventType"`
	JobID        string    `json:"jobId"`
	Filename     string    `json:"filename"`
	Status       string    `json:"status"`
	TotalRows    int       `json:"totalRows"`
	SuccessCount int       `json:"successCount"`
	CreatedCount int       `json:"createdCount"`
	UpdatedCount int       `json:"updatedCount"`
	FailedCount  int       `json:"failedCount"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewImportCompletedEvent builds the event payload for a job.
func NewImportCompletedEvent(job *models.ImportJob) *ImportCompletedEvent {
	event := &ImportCompletedEvent{
		EventID:      uuid.New().String(),
		EventType:    SubjectImportFinished,
		JobID:        job.ID.String(),
		Filename:     job.Filename,
		Status:       string(job.Status),
		TotalRows:    job.TotalRows,
		SuccessCount: job.SuccessCount,
		CreatedCount: job.CreatedCount,
		UpdatedCount: job.UpdatedCount,
		FailedCount:  job.FailedCount,
		Timestamp:    time.Now().UTC(),
	}
	if job.ErrorMessage != nil {
		event.ErrorMessage = *job.ErrorMessage
	}
	return event
}

// Publisher sends catalog events to JetStream.
type Publisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logrus.Entry
}

// NewPublisher connects to NATS and makes sure the catalog stream exists.
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	if natsURL == "" {
		return nil, fmt.Errorf("NATS_URL not set")
	}

	log := logger.WithField("component", "catalog-events")
	nc, err := nats.Connect(natsURL,
		nats.Name("catalog-import-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamCatalog,
		Subjects:  []string{"catalog.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour * 7,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	}); err != nil {
		log.WithError(err).Warn("Failed to ensure catalog stream (may already exist)")
	}

	return &Publisher{conn: nc, js: js, logger: log}, nil
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}

// PublishImportCompleted publishes asynchronously; failures are only logged.
func (p *Publisher) PublishImportCompleted(ctx context.Context, job *models.ImportJob) error {
	event := NewImportCompletedEvent(job)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode import event: %w", err)
	}

	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fields := logrus.Fields{
			"eventType": event.EventType,
			"jobID":     event.JobID,
			"status":    event.Status,
		}
		if _, err := p.js.Publish(pubCtx, SubjectImportFinished, data); err != nil {
			p.logger.WithFields(fields).WithError(err).Error("Failed to publish import event")
			return
		}
		p.logger.WithFields(fields).Info("Import event published")
	}()

	return nil
}
