package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/reelsmith/studio/internal/logging"
)

type fakeJetStream struct {
	subjects []string
	bodies   [][]byte
	err      error
}

func (f *fakeJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subj)
	f.bodies = append(f.bodies, data)
	return &nats.PubAck{Stream: StreamName}, nil
}

func TestNewPublisher_NoURLIsNoop(t *testing.T) {
	p := NewPublisher("", nil, nil)
	if _, ok := p.(Noop); !ok {
		t.Fatalf("publisher = %T, want Noop", p)
	}
	if err := p.PublishArtifact(context.Background(), ArtifactCompleted, ArtifactPayload{ArtifactID: "a"}); err != nil {
		t.Errorf("noop publish error = %v", err)
	}
}

func TestNewPublisher_UnreachableServerIsNoop(t *testing.T) {
	p := NewPublisher("nats://127.0.0.1:1", nil, nil)
	if _, ok := p.(Noop); !ok {
		t.Fatalf("publisher = %T, want Noop", p)
	}
}

func TestPublishArtifact_Envelope(t *testing.T) {
	js := &fakeJetStream{}
	p := &natsPublisher{js: js, logger: logging.Nop()}

	payload := ArtifactPayload{ArtifactType: "clip", ArtifactID: "clip-1", ShotID: "shot-1", Version: 2, OutputPath: "/out/clip-1.mp4"}
	if err := p.PublishArtifact(context.Background(), ArtifactCompleted, payload); err != nil {
		t.Fatalf("PublishArtifact() error = %v", err)
	}

	if len(js.subjects) != 1 || js.subjects[0] != "studio.artifact.completed" {
		t.Fatalf("subjects = %v", js.subjects)
	}
	var env struct {
		Type          string          `json:"type"`
		Version       string          `json:"version"`
		CorrelationID string          `json:"correlation_id"`
		Payload       ArtifactPayload `json:"payload"`
	}
	if err := json.Unmarshal(js.bodies[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != ArtifactCompleted || env.Version != schemaVersion || env.CorrelationID == "" {
		t.Errorf("envelope = %+v", env)
	}
	if env.Payload != payload {
		t.Errorf("payload = %+v, want %+v", env.Payload, payload)
	}
}

func TestPublishArtifact_Error(t *testing.T) {
	p := &natsPublisher{js: &fakeJetStream{err: errors.New("no responders")}, logger: logging.Nop()}
	if err := p.PublishArtifact(context.Background(), ArtifactFailed, ArtifactPayload{ArtifactID: "kf-1"}); err == nil {
		t.Error("expected publish error")
	}
}
