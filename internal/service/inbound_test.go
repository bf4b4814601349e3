package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"rastreio-bot/internal/model"
)

func (env *testEnv) inboundRouter() *InboundRouter {
	return NewInboundRouter(env.orders, env.history, env.messenger, env.publisher, env.log)
}

func TestInboundCreatesContactForUnknownNumber(t *testing.T) {
	env := newTestEnv(t)
	router := env.inboundRouter()
	ctx := context.Background()
	env.messenger.pictures["5582999990000"] = "https://pps.whatsapp.net/ana.jpg"

	err := router.Handle(ctx, model.IncomingMessage{
		FromPhone:  "5582999990000",
		SenderName: "Ana",
		Body:       "Oi, cadê meu pedido?",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	order, err := env.orders.FindByPhone(ctx, "5582999990000")
	if err != nil || order == nil {
		t.Fatalf("expected order to be created, got %v %v", order, err)
	}
	if order.Name != "Ana" || order.Product != newContactProduct {
		t.Fatalf("unexpected placeholder order: %+v", order)
	}
	if order.UnreadCount != 0 {
		t.Fatalf("the creating message should not count as unread, got %d", order.UnreadCount)
	}
	if order.ProfilePictureURL != "https://pps.whatsapp.net/ana.jpg" {
		t.Fatalf("expected profile picture to be attached, got %q", order.ProfilePictureURL)
	}
	if env.publisher.count(model.EventNewContact) != 1 || env.publisher.count(model.EventNewMessage) != 1 {
		t.Fatalf("expected novo_contato and nova_mensagem events")
	}

	entries, _ := env.history.List(ctx, order.ID)
	if len(entries) != 1 || entries[0].Direction != model.DirectionInbound || entries[0].Category != model.CategoryInbound {
		t.Fatalf("unexpected history: %+v", entries)
	}
}

func TestInboundNameFallsBackToPhone(t *testing.T) {
	env := newTestEnv(t)
	router := env.inboundRouter()

	router.Handle(context.Background(), model.IncomingMessage{FromPhone: "82 99999-0000", Body: "oi"})

	order, _ := env.orders.FindByPhone(context.Background(), "5582999990000")
	if order == nil || order.Name != "5582999990000" {
		t.Fatalf("expected phone as display name, got %+v", order)
	}
}

func TestInboundIncrementsUnreadForKnownOrder(t *testing.T) {
	env := newTestEnv(t)
	router := env.inboundRouter()
	ctx := context.Background()
	order := env.createOrder(t, model.NewOrder{Name: "Ana", Phone: "5582999990000", Product: "Kit X"})

	for i := 0; i < 3; i++ {
		if err := router.Handle(ctx, model.IncomingMessage{FromPhone: "5582999990000", Body: "oi"}); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	reloaded, _ := env.orders.Get(ctx, order.ID)
	if reloaded.UnreadCount != 3 {
		t.Fatalf("expected unread 3, got %d", reloaded.UnreadCount)
	}
	if reloaded.Product != "Kit X" {
		t.Fatalf("existing order must not be overwritten")
	}
	if env.publisher.count(model.EventNewContact) != 0 {
		t.Fatalf("expected no novo_contato for a known number")
	}
}

func TestInboundMatchesNumberWithoutNinthDigit(t *testing.T) {
	env := newTestEnv(t)
	router := env.inboundRouter()
	ctx := context.Background()
	order := env.createOrder(t, model.NewOrder{Name: "Ana", Phone: "5582999990000"})

	// WhatsApp ids of older accounts drop the ninth digit.
	router.Handle(ctx, model.IncomingMessage{FromPhone: "558299990000", Body: "oi"})

	reloaded, _ := env.orders.Get(ctx, order.ID)
	if reloaded.UnreadCount != 1 {
		t.Fatalf("expected message to be filed under the existing order")
	}
}

func TestInboundIgnoresGroupsStatusAndEmpty(t *testing.T) {
	env := newTestEnv(t)
	router := env.inboundRouter()
	ctx := context.Background()

	msgs := []model.IncomingMessage{
		{FromPhone: "5582999990000", Body: "grupo", IsGroup: true},
		{FromPhone: "5582999990000", Body: "status", IsStatus: true},
		{FromPhone: "5582999990000", Body: "   "},
		{FromPhone: "123", Body: "short"},
	}
	for _, msg := range msgs {
		if err := router.Handle(ctx, msg); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	orders, _ := env.orders.List(ctx, "")
	if len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
}

func TestInboundConcurrentFirstContactCreatesOneOrder(t *testing.T) {
	env := newTestEnv(t)
	router := env.inboundRouter()
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := router.Handle(ctx, model.IncomingMessage{FromPhone: "5582999990000", SenderName: "Ana", Body: "oi"}); err != nil {
				t.Errorf("handle: %v", err)
			}
		}()
	}
	wg.Wait()

	orders, _ := env.orders.List(ctx, "")
	if len(orders) != 1 {
		t.Fatalf("expected exactly one order, got %d", len(orders))
	}
	if orders[0].UnreadCount != n-1 {
		t.Fatalf("expected unread %d, got %d", n-1, orders[0].UnreadCount)
	}
	entries, _ := env.history.List(ctx, orders[0].ID)
	if len(entries) != n {
		t.Fatalf("expected %d history entries, got %d", n, len(entries))
	}
	if got := env.publisher.count(model.EventNewContact); got != 1 {
		t.Fatalf("expected one novo_contato event, got %d", got)
	}
}

func TestInboundRunDrainsChannel(t *testing.T) {
	env := newTestEnv(t)
	router := env.inboundRouter()

	messages := make(chan model.IncomingMessage, 2)
	messages <- model.IncomingMessage{FromPhone: "5582999990000", Body: "oi"}
	messages <- model.IncomingMessage{FromPhone: "5582999990000", Body: "tudo bem?"}
	close(messages)

	done := make(chan error, 1)
	go func() { done <- router.Run(context.Background(), messages) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after the stream closed")
	}

	order, _ := env.orders.FindByPhone(context.Background(), "5582999990000")
	if order == nil || order.UnreadCount != 1 {
		t.Fatalf("expected the follow-up message counted as unread, got %+v", order)
	}
}
