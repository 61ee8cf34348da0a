package service

import (
	"bytes"
	"claims_settlement/internal/domain"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// EventSink delivers one settlement event to a destination (audit log,
// webhook, indexer). Sinks must tolerate redelivery.
type EventSink interface {
	Deliver(event domain.SettlementEvent) error
}

// EventService fans settlement events out to its sinks through a bounded
// queue and a fixed worker pool. Publishing never blocks settlement: when
// the queue is full the event is dropped and counted.
type EventService struct {
	sinks        []EventSink
	eventQueue   chan domain.SettlementEvent
	workers      int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	dropped      int
	logger       *slog.Logger
}

func NewEventService(sinks []EventSink, workers int, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}

	s := &EventService{
		sinks:        sinks,
		eventQueue:   make(chan domain.SettlementEvent, 1000),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	s.startWorkers()

	return s
}

func (s *EventService) Publish(ctx context.Context, event domain.SettlementEvent) {
	select {
	case s.eventQueue <- event:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.logger.Warn("Event queue full, dropping event",
			slog.String("event_id", event.ID),
			slog.String("type", string(event.Type)))
	}
}

func (s *EventService) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *EventService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *EventService) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case event := <-s.eventQueue:
			s.dispatch(event, id)
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *EventService) dispatch(event domain.SettlementEvent, workerID int) {
	for _, sink := range s.sinks {
		startTime := time.Now()
		err := sink.Deliver(event)
		duration := time.Since(startTime)

		if err != nil {
			s.logger.Error("Failed to deliver event",
				slog.String("event_id", event.ID),
				slog.String("type", string(event.Type)),
				slog.String("error", err.Error()),
				slog.Int("worker_id", workerID),
				slog.Duration("duration", duration))
		}
	}
}

func (s *EventService) Shutdown(ctx context.Context) error {
	close(s.shutdownChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Event service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AuditLogSink writes every event to the structured log.
type AuditLogSink struct {
	Logger *slog.Logger
}

func (a *AuditLogSink) Deliver(event domain.SettlementEvent) error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Settlement event",
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.Uint64("claim_id", event.ClaimID),
		slog.Any("payload", event.Payload),
		slog.Time("at", event.Timestamp))
	return nil
}

// WebhookSink POSTs each event as JSON to a fixed endpoint.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

func (w *WebhookSink) Deliver(event domain.SettlementEvent) error {
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}

	resp, err := client.Post(w.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("deliver event %s: %w", event.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("deliver event %s: unexpected status %d", event.ID, resp.StatusCode)
	}
	return nil
}

// MockSink records delivered events for tests.
type MockSink struct {
	mu     sync.Mutex
	Events []domain.SettlementEvent
}

func (m *MockSink) Deliver(event domain.SettlementEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockSink) Delivered() []domain.SettlementEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SettlementEvent, len(m.Events))
	copy(out, m.Events)
	return out
}
