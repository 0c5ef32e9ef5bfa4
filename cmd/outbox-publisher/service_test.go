package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/pkg/config"
	"github.com/stallside/stallside-backend/pkg/db/models"
	"github.com/stallside/stallside-backend/pkg/enums"
	"github.com/stallside/stallside-backend/pkg/logger"
	"github.com/stallside/stallside-backend/pkg/outbox"
)

type stubRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (s *stubRepo) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return s.events, nil
}

func (s *stubRepo) MarkPublished(id uuid.UUID) error {
	s.published = append(s.published, id)
	return nil
}

func (s *stubRepo) MarkFailed(id uuid.UUID, err error) error {
	s.failed = append(s.failed, id)
	return nil
}

type stubPubSub struct{}

func (stubPubSub) Ping(context.Context) error            { return nil }
func (stubPubSub) Publisher(string) *gcppubsub.Publisher { return nil }

type capturedMessage struct {
	topic string
	msg   *gcppubsub.Message
}

type fakePublisher struct {
	topic    string
	err      error
	captured *[]capturedMessage
}

func (f *fakePublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if f.captured != nil {
		*f.captured = append(*f.captured, capturedMessage{topic: f.topic, msg: msg})
	}
	return &fakeResult{err: f.err}
}

type fakeResult struct {
	err error
}

func (f *fakeResult) Get(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "server-id", nil
}

func testConfig() *config.Config {
	return &config.Config{
		Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 3},
		PubSub: config.PubSubConfig{OrdersTopic: "order-events", NotificationTopic: "notification-events"},
	}
}

func newTestService(t *testing.T, repo *stubRepo, publishErr error, captured *[]capturedMessage) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Config:     testConfig(),
		Logger:     logger.New(logger.Options{ServiceName: "outbox-test"}),
		PubSub:     stubPubSub{},
		Repository: repo,
		PublisherFactory: func(topic string) publisher {
			return &fakePublisher{topic: topic, err: publishErr, captured: captured}
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

func outboxEvent(t *testing.T, eventType enums.OutboxEventType) models.OutboxEvent {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	event := outboxEvent(t, enums.EventOrderFinalized)
	repo := &stubRepo{events: []models.OutboxEvent{event}}
	var captured []capturedMessage
	service := newTestService(t, repo, nil, &captured)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report work")
	}
	if len(repo.published) != 1 || repo.published[0] != event.ID {
		t.Fatal("event should be marked published")
	}
	if len(captured) != 1 {
		t.Fatalf("expected one publish, got %d", len(captured))
	}
	if captured[0].topic != "order-events" {
		t.Fatalf("order events belong on the order topic, got %s", captured[0].topic)
	}
	if captured[0].msg.Attributes["event_id"] == "" {
		t.Fatal("envelope event id should ride along as an attribute")
	}
}

func TestProcessBatchRoutesReminderEventsToNotificationTopic(t *testing.T) {
	event := outboxEvent(t, enums.EventReminderScheduled)
	repo := &stubRepo{events: []models.OutboxEvent{event}}
	var captured []capturedMessage
	service := newTestService(t, repo, nil, &captured)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(captured) != 1 || captured[0].topic != "notification-events" {
		t.Fatal("reminder events belong on the notification topic")
	}
}

func TestProcessBatchMarksFailureAndContinues(t *testing.T) {
	event := outboxEvent(t, enums.EventEscrowReleased)
	repo := &stubRepo{events: []models.OutboxEvent{event}}
	service := newTestService(t, repo, errors.New("broker unavailable"), nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("a publish failure must not abort the batch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report work")
	}
	if len(repo.failed) != 1 || repo.failed[0] != event.ID {
		t.Fatal("failed publish should be recorded for retry")
	}
	if len(repo.published) != 0 {
		t.Fatal("failed event must not be marked published")
	}
}

func TestProcessBatchIdlesWhenEmpty(t *testing.T) {
	service := newTestService(t, &stubRepo{}, nil, nil)
	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatal("empty fetch should report no work")
	}
}
