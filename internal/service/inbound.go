package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rastreio-bot/internal/metrics"
	"rastreio-bot/internal/model"
	"rastreio-bot/internal/repository"
	"rastreio-bot/pkg/logger"
)

const newContactProduct = "Novo Contato (via WhatsApp)"

// InboundRouter files customer messages under their order, creating a
// placeholder order for numbers seen for the first time.
type InboundRouter struct {
	orders         OrderStore
	history        HistoryStore
	messenger      Messenger
	publisher      Publisher
	logger         *logger.Logger
	pictureTimeout time.Duration
}

// NewInboundRouter creates a new inbound router
func NewInboundRouter(orders OrderStore, history HistoryStore, messenger Messenger, publisher Publisher, log *logger.Logger) *InboundRouter {
	return &InboundRouter{
		orders:         orders,
		history:        history,
		messenger:      messenger,
		publisher:      publisher,
		logger:         log.WithComponent("inbound"),
		pictureTimeout: 10 * time.Second,
	}
}

// Run handles messages one at a time until ctx is cancelled or the stream
// closes. A failing message is logged and skipped.
func (r *InboundRouter) Run(ctx context.Context, messages <-chan model.IncomingMessage) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := r.Handle(ctx, msg); err != nil {
				metrics.InboundMessagesTotal.WithLabelValues("failed").Inc()
				r.logger.Error("Failed to handle inbound message",
					"error", err,
					"from", msg.FromPhone,
					"message_id", msg.MessageID,
				)
			}
		}
	}
}

// Handle records one inbound message
func (r *InboundRouter) Handle(ctx context.Context, msg model.IncomingMessage) error {
	if msg.IsGroup || msg.IsStatus {
		metrics.InboundMessagesTotal.WithLabelValues("ignored").Inc()
		return nil
	}
	body := strings.TrimSpace(msg.Body)
	if body == "" {
		metrics.InboundMessagesTotal.WithLabelValues("ignored").Inc()
		return nil
	}

	phone := NormalizePhone(msg.FromPhone)
	if phone == "" {
		metrics.InboundMessagesTotal.WithLabelValues("ignored").Inc()
		r.logger.Warn("Inbound message from unusable number", "from", msg.FromPhone)
		return nil
	}

	order, created, err := r.findOrCreate(ctx, phone, msg.SenderName)
	if err != nil {
		return err
	}

	if !created {
		if err := r.orders.IncrementUnread(ctx, order.ID); err != nil {
			return fmt.Errorf("failed to count unread message: %w", err)
		}
	}
	if _, err := r.history.Append(ctx, order.ID, body, model.CategoryInbound, model.DirectionInbound); err != nil {
		return fmt.Errorf("failed to record inbound message: %w", err)
	}

	log := r.logger.WithOrderID(order.ID)
	if created {
		r.attachProfilePicture(ctx, order)
		fresh, err := r.orders.Get(ctx, order.ID)
		if err == nil && fresh != nil {
			order = fresh
		}
		r.publisher.Publish(model.NewNewContactEvent(order))
		metrics.InboundMessagesTotal.WithLabelValues("new_contact").Inc()
		log.WithPhone(phone).Info("New contact created from inbound message")
	} else {
		metrics.InboundMessagesTotal.WithLabelValues("routed").Inc()
		log.Debug("Inbound message recorded")
	}
	r.publisher.Publish(model.NewMessageEvent(order.ID))
	return nil
}

// findOrCreate resolves the order for phone. Concurrent first contacts from
// the same number race on the unique phone column; the loser reads the
// winner's row.
func (r *InboundRouter) findOrCreate(ctx context.Context, phone, senderName string) (*model.Order, bool, error) {
	variants := PhoneVariants(phone)

	existing, err := r.orders.FindByPhone(ctx, variants...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up order: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	name := strings.TrimSpace(senderName)
	if name == "" {
		name = phone
	}

	order, err := r.orders.Create(ctx, model.NewOrder{
		Name:    name,
		Phone:   phone,
		Product: newContactProduct,
	})
	if errors.Is(err, repository.ErrDuplicatePhone) {
		existing, err = r.orders.FindByPhone(ctx, variants...)
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up order: %w", err)
		}
		if existing == nil {
			return nil, false, fmt.Errorf("order for %s vanished after conflict", phone)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}
	return order, true, nil
}

func (r *InboundRouter) attachProfilePicture(ctx context.Context, order *model.Order) {
	picCtx, cancel := context.WithTimeout(ctx, r.pictureTimeout)
	defer cancel()

	url, err := r.messenger.ProfilePictureURL(picCtx, order.Phone)
	if err != nil {
		if !errors.Is(err, ErrNoProfilePicture) {
			r.logger.WithOrderID(order.ID).WithError(err).Debug("Profile picture lookup failed")
		}
		return
	}
	if _, err := r.orders.Update(ctx, order.ID, model.OrderUpdate{ProfilePictureURL: &url}); err != nil {
		r.logger.WithOrderID(order.ID).WithError(err).Warn("Failed to save profile picture")
	}
}
