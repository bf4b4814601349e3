package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rastreio-bot/internal/model"
	"rastreio-bot/pkg/logger"
)

type fakeTransport struct {
	events          chan TransportEvent
	connectCalls    int32
	disconnectCalls int32
	connectErr      error
	identity        *model.BotInfo
	identityErr     error
	onConnect       func()
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan TransportEvent, 8)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	atomic.AddInt32(&f.connectCalls, 1)
	if f.onConnect != nil {
		f.onConnect()
	}
	return f.connectErr
}

func (f *fakeTransport) Disconnect(ctx context.Context) error {
	atomic.AddInt32(&f.disconnectCalls, 1)
	return nil
}

func (f *fakeTransport) Identity(ctx context.Context) (*model.BotInfo, error) {
	return f.identity, f.identityErr
}

func (f *fakeTransport) Events() <-chan TransportEvent {
	return f.events
}

func newTestSession(t *testing.T, transport *fakeTransport) (*SessionManager, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	return NewSessionManager(transport, NewQRRenderer(nil), pub, logger.Discard()), pub
}

func runSession(t *testing.T, m *SessionManager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitForStatus(t *testing.T, m *SessionManager, want model.SessionStatus) model.SessionState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := m.Snapshot(); s.Status == want {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached %s, last %s", want, m.Snapshot().Status)
	return model.SessionState{}
}

func TestRequestConnectTwiceCallsTransportOnce(t *testing.T) {
	transport := newFakeTransport()
	m, _ := newTestSession(t, transport)

	if err := m.RequestConnect(context.Background()); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := m.RequestConnect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}

	if n := atomic.LoadInt32(&transport.connectCalls); n != 1 {
		t.Fatalf("expected one transport connect, got %d", n)
	}
	if s := m.Snapshot(); s.Status != model.SessionConnecting {
		t.Fatalf("expected CONNECTING, got %s", s.Status)
	}
}

func TestRequestConnectConcurrent(t *testing.T) {
	transport := newFakeTransport()
	m, _ := newTestSession(t, transport)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RequestConnect(context.Background())
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&transport.connectCalls); n != 1 {
		t.Fatalf("expected one transport connect, got %d", n)
	}
}

func TestSessionPairingFlow(t *testing.T) {
	transport := newFakeTransport()
	m, pub := newTestSession(t, transport)
	runSession(t, m)

	if err := m.RequestConnect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	transport.events <- TransportEvent{Kind: TransportPairingCode, Code: "2@abc,def,ghi"}
	state := waitForStatus(t, m, model.SessionAwaitingPairing)
	if !strings.HasPrefix(state.QRCode, "data:image/png;base64,") {
		t.Fatalf("expected a PNG data URL, got %.40q", state.QRCode)
	}

	// Connect while awaiting a scan is ignored as well.
	m.RequestConnect(context.Background())
	if n := atomic.LoadInt32(&transport.connectCalls); n != 1 {
		t.Fatalf("expected connect to be ignored while awaiting pairing, got %d calls", n)
	}

	transport.events <- TransportEvent{Kind: TransportAuthenticated}
	state = waitForStatus(t, m, model.SessionConnected)
	if state.QRCode != "" {
		t.Fatalf("expected pairing artifact to be cleared once connected")
	}
	if state.BotInfo != nil {
		t.Fatalf("expected nil identity when the transport has none")
	}

	transport.events <- TransportEvent{Kind: TransportSessionLost, Reason: "logged out"}
	waitForStatus(t, m, model.SessionDisconnected)

	want := []model.SessionStatus{
		model.SessionConnecting,
		model.SessionAwaitingPairing,
		model.SessionConnected,
		model.SessionDisconnected,
	}
	if got := pub.statuses(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
}

func TestSessionIdentityIsCached(t *testing.T) {
	transport := newFakeTransport()
	transport.identity = &model.BotInfo{Name: "Loja", Phone: "5582999990000"}
	m, _ := newTestSession(t, transport)
	runSession(t, m)

	m.RequestConnect(context.Background())
	transport.events <- TransportEvent{Kind: TransportAuthenticated}
	state := waitForStatus(t, m, model.SessionConnected)

	if state.BotInfo == nil || state.BotInfo.Phone != "5582999990000" {
		t.Fatalf("expected identity to be cached, got %+v", state.BotInfo)
	}
	state.BotInfo.Name = "changed"
	if m.Snapshot().BotInfo.Name != "Loja" {
		t.Fatalf("snapshot must not share the identity with callers")
	}
}

func TestSessionIdentityFailureStillConnects(t *testing.T) {
	transport := newFakeTransport()
	transport.identityErr = errors.New("usync timeout")
	m, _ := newTestSession(t, transport)
	runSession(t, m)

	m.RequestConnect(context.Background())
	transport.events <- TransportEvent{Kind: TransportAuthenticated}
	state := waitForStatus(t, m, model.SessionConnected)
	if state.BotInfo != nil {
		t.Fatalf("expected nil identity, got %+v", state.BotInfo)
	}
}

func TestRequestConnectFailureResets(t *testing.T) {
	transport := newFakeTransport()
	transport.connectErr = errors.New("dial failed")
	m, pub := newTestSession(t, transport)

	if err := m.RequestConnect(context.Background()); err == nil {
		t.Fatalf("expected connect error")
	}
	want := []model.SessionStatus{model.SessionConnecting, model.SessionDisconnected}
	if got := pub.statuses(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}

	transport.connectErr = nil
	if err := m.RequestConnect(context.Background()); err != nil {
		t.Fatalf("retry connect: %v", err)
	}
	if n := atomic.LoadInt32(&transport.connectCalls); n != 2 {
		t.Fatalf("expected retry to reach the transport, got %d calls", n)
	}
}

func TestRequestDisconnect(t *testing.T) {
	transport := newFakeTransport()
	m, _ := newTestSession(t, transport)
	runSession(t, m)

	m.RequestConnect(context.Background())
	transport.events <- TransportEvent{Kind: TransportAuthenticated}
	waitForStatus(t, m, model.SessionConnected)

	if err := m.RequestDisconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if n := atomic.LoadInt32(&transport.disconnectCalls); n != 1 {
		t.Fatalf("expected one transport teardown, got %d", n)
	}
	if s := m.Snapshot(); s.Status != model.SessionDisconnected || s.BotInfo != nil {
		t.Fatalf("expected reset state, got %+v", s)
	}
	if m.IsConnected() {
		t.Fatalf("expected IsConnected false after disconnect")
	}
}

func TestLatePairingCodeAfterDisconnectIsDropped(t *testing.T) {
	transport := newFakeTransport()
	m, _ := newTestSession(t, transport)

	m.handleEvent(context.Background(), TransportEvent{Kind: TransportPairingCode, Code: "stale"})
	if s := m.Snapshot(); s.Status != model.SessionDisconnected || s.QRCode != "" {
		t.Fatalf("expected stale pairing code to be ignored, got %+v", s)
	}
}

func TestDisconnectDuringConnectIsNotRevived(t *testing.T) {
	transport := newFakeTransport()
	m, pub := newTestSession(t, transport)
	runSession(t, m)
	ctx := context.Background()

	transport.onConnect = func() {
		if err := m.RequestDisconnect(ctx); err != nil {
			t.Errorf("disconnect: %v", err)
		}
		transport.events <- TransportEvent{Kind: TransportAuthenticated}
	}
	if err := m.RequestConnect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&transport.disconnectCalls) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := atomic.LoadInt32(&transport.disconnectCalls); n != 2 {
		t.Fatalf("expected the stray session to be torn down, got %d disconnect calls", n)
	}
	if s := m.Snapshot(); s.Status != model.SessionDisconnected {
		t.Fatalf("expected DISCONNECTED, got %s", s.Status)
	}
	for _, status := range pub.statuses() {
		if status == model.SessionConnected {
			t.Fatalf("session must not report CONNECTED after the operator disconnected: %v", pub.statuses())
		}
	}
}
