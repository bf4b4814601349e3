package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"rastreio-bot/internal/config"
	"rastreio-bot/internal/metrics"
	"rastreio-bot/internal/model"
	"rastreio-bot/pkg/logger"
)

// ErrNoTrackingEvents is returned when the carrier knows the code but has
// not recorded any event yet
var ErrNoTrackingEvents = errors.New("carrier returned no tracking events")

// TrackingResult is the latest carrier event for a tracking code
type TrackingResult struct {
	Status    string
	Location  string
	UpdatedAt string
}

// TrackingClient resolves a tracking code to its latest carrier event
type TrackingClient interface {
	Resolve(ctx context.Context, code string) (*TrackingResult, error)
}

// SiteRastreioClient queries the Site Rastreio tracking API
type SiteRastreioClient struct {
	httpClient *http.Client
	url        string
	apiKey     string
	retryCount int
	backoff    time.Duration
	logger     *logger.Logger
}

// NewSiteRastreioClient creates a new carrier client
func NewSiteRastreioClient(cfg *config.TrackingConfig, log *logger.Logger) *SiteRastreioClient {
	return &SiteRastreioClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		url:        cfg.APIURL,
		apiKey:     cfg.APIKey,
		retryCount: cfg.RetryCount,
		backoff:    time.Second,
		logger:     log.WithComponent("tracking"),
	}
}

// Resolve looks a code up with retry and exponential backoff
func (c *SiteRastreioClient) Resolve(ctx context.Context, code string) (*TrackingResult, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.backoff
			c.logger.Warn("Retrying tracking lookup",
				"code", code,
				"attempt", attempt+1,
				"backoff_seconds", backoff.Seconds(),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := c.lookup(ctx, code)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrNoTrackingEvents) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("tracking lookup failed after %d attempts: %w", c.retryCount+1, lastErr)
}

type trackRequest struct {
	Code string `json:"code"`
}

// trackResponse wraps the carrier payload as a JSON-encoded string
type trackResponse struct {
	JSON string `json:"json"`
}

type trackPayload struct {
	Events []trackEvent `json:"eventos"`
}

type trackEvent struct {
	Description string `json:"descricaoFrontEnd"`
	Unit        struct {
		Address struct {
			City string `json:"cidade"`
		} `json:"endereco"`
	} `json:"unidade"`
	CreatedAt struct {
		Date string `json:"date"`
	} `json:"dtHrCriado"`
}

func (c *SiteRastreioClient) lookup(ctx context.Context, code string) (*TrackingResult, error) {
	body, err := json.Marshal(trackRequest{Code: code})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Apikey "+c.apiKey)
	req.Header.Set("User-Agent", "rastreio-bot/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var envelope trackResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var payload trackPayload
	if err := json.Unmarshal([]byte(envelope.JSON), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode tracking payload: %w", err)
	}
	if len(payload.Events) == 0 {
		return nil, ErrNoTrackingEvents
	}

	// Most recent event first
	latest := payload.Events[0]
	return &TrackingResult{
		Status:    orDefault(latest.Description, "Desconhecido"),
		Location:  orDefault(latest.Unit.Address.City, "-"),
		UpdatedAt: orDefault(latest.CreatedAt.Date, "-"),
	}, nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// PollResult summarizes one polling pass
type PollResult struct {
	Checked int
	Updated int
	Failed  int
}

// TrackingPoller refreshes the carrier status of every tracked order
type TrackingPoller struct {
	orders    OrderStore
	client    TrackingClient
	publisher Publisher
	logger    *logger.Logger
}

// NewTrackingPoller creates a new tracking poller
func NewTrackingPoller(orders OrderStore, client TrackingClient, publisher Publisher, log *logger.Logger) *TrackingPoller {
	return &TrackingPoller{
		orders:    orders,
		client:    client,
		publisher: publisher,
		logger:    log.WithComponent("tracking"),
	}
}

// Poll looks up every order with a tracking code. Lookup failures leave the
// stored status untouched; the order is retried on the next pass.
func (p *TrackingPoller) Poll(ctx context.Context) (PollResult, error) {
	var result PollResult

	orders, err := p.orders.List(ctx, "")
	if err != nil {
		return result, fmt.Errorf("failed to list orders: %w", err)
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		code := strings.TrimSpace(model.StringValue(order.TrackingCode))
		if code == "" || code == "-" {
			continue
		}
		result.Checked++

		log := p.logger.WithOrderID(order.ID)
		tracked, err := p.client.Resolve(ctx, code)
		if err != nil {
			result.Failed++
			metrics.TrackingLookupsTotal.WithLabelValues("failure").Inc()
			log.Warn("Tracking lookup failed", "code", code, "error", err)
			continue
		}
		metrics.TrackingLookupsTotal.WithLabelValues("success").Inc()

		if model.StringValue(order.CarrierStatus) == tracked.Status &&
			order.LastLocation == tracked.Location &&
			order.LastUpdate == tracked.UpdatedAt {
			continue
		}

		_, err = p.orders.Update(ctx, order.ID, model.OrderUpdate{
			CarrierStatus: &tracked.Status,
			LastLocation:  &tracked.Location,
			LastUpdate:    &tracked.UpdatedAt,
		})
		if err != nil {
			result.Failed++
			log.WithError(err).Error("Failed to save tracking status")
			continue
		}
		result.Updated++
		p.publisher.Publish(model.OrderUpdatedEvent(order.ID))
		log.Info("Carrier status updated", "code", code, "status", tracked.Status, "location", tracked.Location)
	}

	return result, nil
}
