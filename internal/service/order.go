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

// OrderService implements the operator and integration operations on orders
type OrderService struct {
	orders      OrderStore
	history     HistoryStore
	messenger   Messenger
	publisher   Publisher
	locks       *KeyLocker
	sendTimeout time.Duration
	logger      *logger.Logger

	notifier  OrderNotifier
	connected func() bool
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderStore,
	history HistoryStore,
	messenger Messenger,
	publisher Publisher,
	locks *KeyLocker,
	sendTimeout time.Duration,
	log *logger.Logger,
) *OrderService {
	return &OrderService{
		orders:      orders,
		history:     history,
		messenger:   messenger,
		publisher:   publisher,
		locks:       locks,
		sendTimeout: sendTimeout,
		logger:      log.WithComponent("orders"),
	}
}

// NotifyWith makes Create and Update evaluate the order right away while
// connected reports true, instead of leaving it to the next dispatch pass.
func (s *OrderService) NotifyWith(n OrderNotifier, connected func() bool) {
	s.notifier = n
	s.connected = connected
}

// List returns orders newest first, filtered by name or phone when search is set
func (s *OrderService) List(ctx context.Context, search string) ([]*model.Order, error) {
	orders, err := s.orders.List(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []*model.Order{}
	}
	return orders, nil
}

// Get returns one order or ErrNotFound
func (s *OrderService) Get(ctx context.Context, id int64) (*model.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

// Create validates and stores a new order
func (s *OrderService) Create(ctx context.Context, in model.NewOrder) (*model.Order, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, validationError("name is required")
	}
	phone := NormalizePhone(in.Phone)
	if phone == "" {
		return nil, validationError("invalid phone number: expected 10 to 13 digits")
	}
	in.Phone = phone
	in.Product = strings.TrimSpace(in.Product)

	existing, err := s.orders.FindByPhone(ctx, PhoneVariants(phone)...)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrConflict, phone)
	}

	in.ProfilePictureURL = s.lookupPicture(ctx, phone)

	order, err := s.orders.Create(ctx, in)
	if errors.Is(err, repository.ErrDuplicatePhone) {
		return nil, fmt.Errorf("%w: %s", ErrConflict, phone)
	}
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(model.NewNewContactEvent(order))
	s.logger.WithOrderID(order.ID).WithPhone(phone).Info("Order created", "has_picture", order.ProfilePictureURL != "")

	if s.notifyNow(ctx, order.ID) {
		if fresh, err := s.orders.Get(ctx, order.ID); err == nil && fresh != nil {
			order = fresh
		}
	}
	return order, nil
}

// CreateFromPostback registers an order announced by a checkout platform
func (s *OrderService) CreateFromPostback(ctx context.Context, p model.PostbackPayload) (*model.Order, error) {
	if strings.TrimSpace(p.CustomerName) == "" || strings.TrimSpace(p.CustomerPhone) == "" {
		return nil, validationError("nome_cliente and celular_cliente are required")
	}
	s.logger.Info("Checkout postback received", "product", p.ProductName)
	return s.Create(ctx, model.NewOrder{
		Name:    p.CustomerName,
		Phone:   p.CustomerPhone,
		Product: p.ProductName,
	})
}

// Update applies the operator-editable fields of patch. Other fields are ignored.
func (s *OrderService) Update(ctx context.Context, id int64, patch model.OrderUpdate) (*model.Order, error) {
	update := model.OrderUpdate{
		Product:       patch.Product,
		TrackingCode:  patch.TrackingCode,
		CarrierStatus: patch.CarrierStatus,
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, validationError("name cannot be empty")
		}
		update.Name = &name
	}
	if patch.Phone != nil {
		phone := NormalizePhone(*patch.Phone)
		if phone == "" {
			return nil, validationError("invalid phone number: expected 10 to 13 digits")
		}
		update.Phone = &phone
	}
	if update.IsEmpty() {
		return nil, validationError("no updatable fields provided")
	}

	n, err := s.orders.Update(ctx, id, update)
	if errors.Is(err, repository.ErrDuplicatePhone) {
		return nil, fmt.Errorf("%w: %s", ErrConflict, model.StringValue(update.Phone))
	}
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	s.publisher.Publish(model.OrderUpdatedEvent(id))
	s.logger.WithOrderID(id).Info("Order updated")
	s.notifyNow(ctx, id)
	return s.Get(ctx, id)
}

// Delete removes an order together with its history
func (s *OrderService) Delete(ctx context.Context, id int64) error {
	n, err := s.orders.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.publisher.Publish(model.OrderRemovedEvent(id))
	s.logger.WithOrderID(id).Info("Order deleted")
	return nil
}

// History returns the messages exchanged with an order, oldest first
func (s *OrderService) History(ctx context.Context, id int64) ([]*model.HistoryEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.history.List(ctx, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*model.HistoryEntry{}
	}
	return entries, nil
}

// SendManual sends an operator message. It holds the order's lock so it
// never interleaves with an automatic notification to the same customer.
func (s *OrderService) SendManual(ctx context.Context, id int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return validationError("mensagem is required")
	}

	release, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	order, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	err = s.messenger.SendText(sendCtx, order.Phone, text)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	metrics.ManualMessagesTotal.Inc()

	if _, err := s.history.Append(ctx, id, text, model.CategoryManual, model.DirectionOutbound); err != nil {
		return fmt.Errorf("message sent but not recorded: %w", err)
	}

	s.publisher.Publish(model.NewMessageEvent(id))
	s.logger.WithOrderID(id).WithPhone(order.Phone).Info("Manual message sent")
	return nil
}

// RefreshProfilePicture fetches the contact's current public picture
func (s *OrderService) RefreshProfilePicture(ctx context.Context, id int64) (string, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	picCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	url, err := s.messenger.ProfilePictureURL(picCtx, order.Phone)
	cancel()
	if err != nil {
		return "", err
	}

	if _, err := s.orders.Update(ctx, id, model.OrderUpdate{ProfilePictureURL: &url}); err != nil {
		return "", err
	}
	s.publisher.Publish(model.OrderUpdatedEvent(id))
	return url, nil
}

// MarkRead clears the unread counter
func (s *OrderService) MarkRead(ctx context.Context, id int64) error {
	n, err := s.orders.ClearUnread(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.publisher.Publish(model.OrderUpdatedEvent(id))
	return nil
}

func (s *OrderService) lookupPicture(ctx context.Context, phone string) string {
	picCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	url, err := s.messenger.ProfilePictureURL(picCtx, phone)
	if err != nil {
		if !errors.Is(err, ErrNoProfilePicture) && !errors.Is(err, ErrNotConnected) {
			s.logger.WithPhone(phone).WithError(err).Debug("Profile picture lookup failed")
		}
		return ""
	}
	return url
}

// notifyNow runs the automatic notification for one order. Failures are
// logged only; the periodic pass retries them.
func (s *OrderService) notifyNow(ctx context.Context, id int64) bool {
	if s.notifier == nil || s.connected == nil || !s.connected() {
		return false
	}
	sent, err := s.notifier.EvaluateOrder(ctx, id)
	if err != nil {
		s.logger.WithOrderID(id).WithError(err).Warn("Immediate notification failed")
		return false
	}
	return sent
}
