package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rastreio-bot/internal/model"
	"rastreio-bot/internal/repository"
	"rastreio-bot/pkg/logger"
)

type sentMessage struct {
	phone string
	text  string
}

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	failures map[string]error
	pictures map[string]string
	block    chan struct{}
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		failures: make(map[string]error),
		pictures: make(map[string]string),
	}
}

func (m *fakeMessenger) SendText(ctx context.Context, phone, text string) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[phone]; ok {
		return err
	}
	m.sent = append(m.sent, sentMessage{phone: phone, text: text})
	return nil
}

func (m *fakeMessenger) ProfilePictureURL(ctx context.Context, phone string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if url, ok := m.pictures[phone]; ok {
		return url, nil
	}
	return "", ErrNoProfilePicture
}

func (m *fakeMessenger) fail(phone string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[phone] = err
}

func (m *fakeMessenger) recover(phone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, phone)
}

func (m *fakeMessenger) sentTo(phone string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var texts []string
	for _, s := range m.sent {
		if s.phone == phone {
			texts = append(texts, s.text)
		}
	}
	return texts
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(event any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		switch ev := e.(type) {
		case model.OrderEvent:
			if ev.Type == eventType {
				n++
			}
		case model.NewContactEvent:
			if ev.Type == eventType {
				n++
			}
		case model.StatusUpdateEvent:
			if ev.Type == eventType {
				n++
			}
		}
	}
	return n
}

func (p *recordingPublisher) statuses() []model.SessionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.SessionStatus
	for _, e := range p.events {
		if ev, ok := e.(model.StatusUpdateEvent); ok {
			out = append(out, ev.Status)
		}
	}
	return out
}

type testEnv struct {
	orders    *repository.OrderRepository
	history   *repository.HistoryRepository
	messenger *fakeMessenger
	publisher *recordingPublisher
	locks     *KeyLocker
	log       *logger.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &testEnv{
		orders:    repository.NewOrderRepository(db),
		history:   repository.NewHistoryRepository(db),
		messenger: newFakeMessenger(),
		publisher: &recordingPublisher{},
		locks:     NewKeyLocker(),
		log:       logger.Discard(),
	}
}

func (env *testEnv) dispatcher() *DispatchEngine {
	return NewDispatchEngine(env.orders, env.history, env.messenger, env.publisher, env.locks, time.Second, env.log)
}

func (env *testEnv) createOrder(t *testing.T, in model.NewOrder) *model.Order {
	t.Helper()
	order, err := env.orders.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func (env *testEnv) setStatus(t *testing.T, id int64, tracking, status string) {
	t.Helper()
	_, err := env.orders.Update(context.Background(), id, model.OrderUpdate{
		TrackingCode:  &tracking,
		CarrierStatus: &status,
	})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
}

func (env *testEnv) categories(t *testing.T, id int64) []string {
	t.Helper()
	entries, err := env.history.List(context.Background(), id)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Category)
	}
	return out
}

var errTransport = errors.New("transport down")
