package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rastreio-bot/internal/metrics"
	"rastreio-bot/internal/model"
	"rastreio-bot/pkg/logger"
)

// DispatchEngine decides, per order, whether the recorded status warrants a
// notification that has not been sent yet, and sends it at most once.
//
// The dedup watermark (last notified status) only remembers the previous
// value, so a status that recurs after a different one (postado, em
// trânsito, postado) is notified again.
type DispatchEngine struct {
	orders      OrderStore
	history     HistoryStore
	messenger   Messenger
	publisher   Publisher
	locks       *KeyLocker
	sendTimeout time.Duration
	logger      *logger.Logger
}

// PassResult summarizes one dispatch pass
type PassResult struct {
	Evaluated int
	Sent      int
	Failed    int
}

type candidate struct {
	text string
	tag  string
}

// NewDispatchEngine creates a new dispatch engine. locks must be shared with
// every other component that sends on behalf of an order.
func NewDispatchEngine(
	orders OrderStore,
	history HistoryStore,
	messenger Messenger,
	publisher Publisher,
	locks *KeyLocker,
	sendTimeout time.Duration,
	log *logger.Logger,
) *DispatchEngine {
	return &DispatchEngine{
		orders:      orders,
		history:     history,
		messenger:   messenger,
		publisher:   publisher,
		locks:       locks,
		sendTimeout: sendTimeout,
		logger:      log.WithComponent("dispatch"),
	}
}

// EvaluateAndDispatch runs one pass over every order. A failing order is
// logged and skipped; it is retried on the next pass.
func (e *DispatchEngine) EvaluateAndDispatch(ctx context.Context) (PassResult, error) {
	start := time.Now()
	defer func() {
		metrics.DispatchPassDuration.Observe(time.Since(start).Seconds())
	}()

	var result PassResult

	orders, err := e.orders.List(ctx, "")
	if err != nil {
		return result, fmt.Errorf("failed to list orders: %w", err)
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Evaluated++

		sent, err := e.EvaluateOrder(ctx, order.ID)
		if err != nil {
			result.Failed++
			e.logger.WithOrderID(order.ID).WithError(err).Error("Automatic notification failed")
			continue
		}
		if sent {
			result.Sent++
		}
	}

	if result.Sent > 0 || result.Failed > 0 {
		e.logger.Info("Dispatch pass finished",
			"evaluated", result.Evaluated,
			"sent", result.Sent,
			"failed", result.Failed,
			"duration", time.Since(start).String(),
		)
	}
	return result, nil
}

// EvaluateOrder applies the notification rule to a single order under its
// lock. It reports whether a message was sent.
func (e *DispatchEngine) EvaluateOrder(ctx context.Context, orderID int64) (bool, error) {
	release, err := e.locks.Lock(ctx, orderID)
	if err != nil {
		return false, err
	}
	defer release()

	// Re-read under the lock; the listed copy may be stale.
	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, nil
	}

	log := e.logger.WithOrderID(order.ID)

	next, unknownStatus := selectCandidate(order)
	if unknownStatus != "" {
		log.Debug("No template for carrier status", "status", unknownStatus)
	}
	if next == nil {
		return false, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	err = e.messenger.SendText(sendCtx, order.Phone, next.text)
	cancel()
	if err != nil {
		metrics.NotificationFailuresTotal.WithLabelValues(next.tag).Inc()
		return false, fmt.Errorf("failed to send %q notification: %w", next.tag, err)
	}
	metrics.NotificationsSentTotal.WithLabelValues(next.tag).Inc()

	// The send is confirmed; only now may the watermark move.
	tag := next.tag
	if _, err := e.orders.Update(ctx, order.ID, model.OrderUpdate{LastNotifiedStatus: &tag}); err != nil {
		return true, fmt.Errorf("message sent but watermark not saved: %w", err)
	}

	if _, err := e.history.Append(ctx, order.ID, next.text, next.tag, model.DirectionOutbound); err != nil {
		log.WithError(err).Error("Failed to record notification in history", "category", next.tag)
	}

	e.publisher.Publish(model.NewMessageEvent(order.ID))
	e.publisher.Publish(model.OrderUpdatedEvent(order.ID))

	log.WithPhone(order.Phone).Info("Automatic notification sent", "category", next.tag)
	return true, nil
}

// selectCandidate returns the message an order is owed, if any. When the
// carrier status changed but has no template, the status is returned as
// unknown.
func selectCandidate(order *model.Order) (next *candidate, unknown string) {
	watermark := model.StringValue(order.LastNotifiedStatus)
	tracking := strings.TrimSpace(model.StringValue(order.TrackingCode))

	if tracking == "" || tracking == "-" {
		if watermark != "" {
			return nil, ""
		}
		return &candidate{
			text: renderTemplate(welcomeTemplate, order),
			tag:  model.CategoryWelcome,
		}, ""
	}

	current := NormalizeStatus(model.StringValue(order.CarrierStatus))
	if current == "" || current == watermark {
		return nil, ""
	}

	tmpl, ok := statusTemplates[current]
	if !ok {
		return nil, current
	}
	return &candidate{
		text: renderTemplate(tmpl, order),
		tag:  current,
	}, ""
}
