package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/screener-back/pkg/config"
	"github.com/screener-back/pkg/models"
)

// NATSClient publishes screener events to JetStream
type NATSClient struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	logger  *logrus.Entry
	timeout time.Duration
}

// NewNATSClient creates a new NATS client
func NewNATSClient(cfg *config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name("screener-back"),
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	nc := &NATSClient{
		conn:    conn,
		js:      js,
		logger:  logger.WithField("component", "nats"),
		timeout: cfg.PublishTimeout,
	}
	if nc.timeout <= 0 {
		nc.timeout = 2 * time.Second
	}

	if err := nc.initializeStreams(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize streams: %w", err)
	}

	return nc, nil
}

// Close drains and closes the NATS connection
func (nc *NATSClient) Close() error {
	if err := nc.conn.Drain(); err != nil {
		nc.conn.Close()
		return err
	}
	return nil
}

// IsConnected checks if NATS is connected
func (nc *NATSClient) IsConnected() bool {
	return nc.conn.IsConnected()
}

// streamConfigs lists the JetStream streams the screener publishes to
func streamConfigs() []*nats.StreamConfig {
	return []*nats.StreamConfig{
		{
			Name:     "SNAPSHOTS",
			Subjects: []string{"snapshots.>"},
			Storage:  nats.MemoryStorage,
			MaxAge:   1 * time.Hour,
			MaxMsgs:  1000000,
			Replicas: 1,
		},
		{
			Name:       "ALERTS",
			Subjects:   []string{"alerts.>"},
			Storage:    nats.FileStorage,
			MaxAge:     7 * 24 * time.Hour,
			MaxMsgs:    100000,
			Duplicates: 10 * time.Minute,
			Replicas:   1,
		},
		{
			Name:     "INGEST",
			Subjects: []string{"ingest.>"},
			Storage:  nats.MemoryStorage,
			MaxAge:   1 * time.Hour,
			MaxMsgs:  10000,
			Replicas: 1,
		},
	}
}

// initializeStreams creates JetStream streams
func (nc *NATSClient) initializeStreams() error {
	for _, cfg := range streamConfigs() {
		_, err := nc.js.AddStream(cfg)
		if err != nil && err != nats.ErrStreamNameAlreadyInUse {
			return fmt.Errorf("failed to create %s stream: %w", cfg.Name, err)
		}
	}
	return nil
}

// SnapshotSubject is the subject a snapshot is published on
func SnapshotSubject(market models.MarketType, symbol string) string {
	return fmt.Sprintf("snapshots.%s.%s", market, subjectToken(symbol))
}

// CycleSubject is the subject a cycle summary is published on
func CycleSubject(market models.MarketType) string {
	return fmt.Sprintf("ingest.%s.cycle", market)
}

// AlertSubject is the subject fired alerts are published on
const AlertSubject = "alerts.fired"

// subjectToken strips characters NATS treats as separators or wildcards
func subjectToken(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// PublishSnapshot publishes a stored snapshot
func (nc *NATSClient) PublishSnapshot(snap *models.Snapshot) error {
	return nc.publishJSON(SnapshotSubject(snap.MarketType, snap.Symbol), snap, "")
}

// PublishAlert publishes a fired alert. The event carries a unique message
// id so redelivered publishes are deduplicated by the stream.
func (nc *NATSClient) PublishAlert(event *models.AlertEvent) error {
	return nc.publishJSON(AlertSubject, event, uuid.NewString())
}

// PublishCycle publishes an ingestion cycle summary
func (nc *NATSClient) PublishCycle(event *models.IngestCycle) error {
	return nc.publishJSON(CycleSubject(event.Market), event, "")
}

func (nc *NATSClient) publishJSON(subject string, v interface{}, msgID string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", subject, err)
	}

	var opts []nats.PubOpt
	if msgID != "" {
		opts = append(opts, nats.MsgId(msgID))
	}

	future, err := nc.js.PublishAsync(subject, data, opts...)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	select {
	case <-future.Ok():
		return nil
	case err := <-future.Err():
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	case <-time.After(nc.timeout):
		return fmt.Errorf("publish timeout for subject %s", subject)
	}
}
