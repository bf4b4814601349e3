// Command tail connects to the realtime channel and prints every event, one
// JSON log line each. Useful for watching the dashboard feed from a terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rastreio-bot/internal/realtime"
	"rastreio-bot/pkg/logger"
)

func main() {
	var (
		url      string
		apiKey   string
		delay    time.Duration
		logLevel string
	)
	flag.StringVar(&url, "url", "ws://localhost:3000/ws", "Realtime endpoint")
	flag.StringVar(&apiKey, "api-key", "", "Value sent as X-API-Key")
	flag.DurationVar(&delay, "reconnect-delay", 5*time.Second, "Delay between reconnect attempts")
	flag.StringVar(&logLevel, "log-level", "INFO", "Log level")
	flag.Parse()

	appLogger := logger.New(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	header := http.Header{}
	if apiKey != "" {
		header.Set("X-API-Key", apiKey)
	}

	sub := realtime.NewSubscriber(url, header, delay, appLogger)
	appLogger.Info("Tailing realtime events", "url", url)

	err := sub.Run(ctx, func(eventType string, payload []byte) {
		appLogger.Info("Event received", "type", eventType, "payload", json.RawMessage(payload))
	})
	if err != nil {
		log.Fatalf("Subscriber stopped: %v", err)
	}
}
