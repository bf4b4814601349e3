package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"rastreio-bot/pkg/logger"
)

// EventHandler receives each event's type and its raw JSON
type EventHandler func(eventType string, payload []byte)

// Subscriber is the observer side of the hub. It redials after a fixed delay
// whenever the connection drops, until its context ends.
type Subscriber struct {
	url    string
	header http.Header
	delay  time.Duration
	dialer *websocket.Dialer
	logger *logger.Logger
}

// NewSubscriber creates a subscriber for a ws:// or wss:// url
func NewSubscriber(url string, header http.Header, delay time.Duration, log *logger.Logger) *Subscriber {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Subscriber{
		url:    url,
		header: header,
		delay:  delay,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: log.WithComponent("subscriber"),
	}
}

// Run reads events until ctx is cancelled
func (s *Subscriber) Run(ctx context.Context, handle EventHandler) error {
	for {
		if err := s.session(ctx, handle); err != nil && ctx.Err() == nil {
			s.logger.Warn("Realtime connection lost, reconnecting", "error", err, "delay", s.delay.String())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.delay):
		}
	}
}

// session dials once and reads until the connection fails
func (s *Subscriber) session(ctx context.Context, handle EventHandler) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock ReadMessage when ctx ends
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	s.logger.Info("Connected to realtime channel", "url", s.url)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			s.logger.Warn("Ignoring malformed event", "error", err)
			continue
		}
		handle(envelope.Type, data)
	}
}
