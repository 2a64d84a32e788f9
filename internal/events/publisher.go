// Package events publishes artifact lifecycle events to NATS JetStream.
// Without a configured server every publish is a no-op.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/reelsmith/studio/internal/logging"
	"github.com/reelsmith/studio/internal/metrics"
)

const (
	StreamName    = "STUDIO_ARTIFACTS"
	subjectPrefix = "studio."
	schemaVersion = "1.0.0"
)

// Event types.
const (
	ArtifactCompleted = "artifact.completed"
	ArtifactFailed    = "artifact.failed"
)

// ArtifactPayload describes a keyframe or clip that reached a terminal state.
type ArtifactPayload struct {
	ArtifactType string `json:"artifact_type"`
	ArtifactID   string `json:"artifact_id"`
	ShotID       string `json:"shot_id"`
	Version      int    `json:"version"`
	OutputPath   string `json:"output_path,omitempty"`
	RemoteURI    string `json:"remote_uri,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Envelope wraps every published payload.
type Envelope struct {
	Type          string    `json:"type"`
	Version       string    `json:"version"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id"`
	Payload       any       `json:"payload"`
}

type Publisher interface {
	PublishArtifact(ctx context.Context, eventType string, p ArtifactPayload) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) PublishArtifact(context.Context, string, ArtifactPayload) error { return nil }
func (Noop) Close() error                                                 { return nil }

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type natsPublisher struct {
	nc      *nats.Conn
	js      jetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher connects to url and ensures the artifact stream exists. An
// empty url or any connection failure yields a Noop publisher, so event
// delivery never blocks generation.
func NewPublisher(url string, m *metrics.Metrics, logger *slog.Logger) Publisher {
	logger = logging.WithComponent(logger, "events")
	if url == "" {
		return Noop{}
	}

	nc, err := nats.Connect(url, nats.Name("reelsmith-studio"), nats.Timeout(5*time.Second))
	if err != nil {
		logger.Warn("NATS connect failed, events disabled", "error", err)
		return Noop{}
	}
	js, err := nc.JetStream()
	if err != nil {
		logger.Warn("JetStream unavailable, events disabled", "error", err)
		nc.Close()
		return Noop{}
	}
	if err := ensureStream(js); err != nil {
		logger.Warn("stream setup failed, events disabled", "error", err)
		nc.Close()
		return Noop{}
	}

	logger.Info("event publisher connected", "stream", StreamName)
	return &natsPublisher{nc: nc, js: js, metrics: m, logger: logger}
}

func ensureStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(StreamName); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{subjectPrefix + "artifact.*"},
		Retention:  nats.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Discard:    nats.DiscardOld,
		Storage:    nats.FileStorage,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s stream: %w", StreamName, err)
	}
	return nil
}

// Subject returns the NATS subject for an event type.
func Subject(eventType string) string {
	return subjectPrefix + eventType
}

// PublishArtifact sends one event. The message id makes a repeated terminal
// transition for the same artifact collapse into one stream entry.
func (p *natsPublisher) PublishArtifact(_ context.Context, eventType string, payload ArtifactPayload) error {
	env := Envelope{
		Type:          eventType,
		Version:       schemaVersion,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.NewString(),
		Payload:       payload,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msgID := eventType + ":" + payload.ArtifactID
	if _, err := p.js.Publish(Subject(eventType), b, nats.MsgId(msgID)); err != nil {
		p.metrics.EventPublished(eventType, "error")
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	p.metrics.EventPublished(eventType, "ok")
	p.logger.Debug("event published", "type", eventType, "artifact_id", payload.ArtifactID)
	return nil
}

func (p *natsPublisher) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}
