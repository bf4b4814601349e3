package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"rastreio-bot/internal/config"
	"rastreio-bot/internal/metrics"
	"rastreio-bot/internal/model"
	"rastreio-bot/pkg/logger"
)

// WhatsAppService adapts whatsmeow to the session, messaging and inbound
// collaborators. Lifecycle changes are reported on Events, customer messages
// on Messages.
type WhatsAppService struct {
	container *sqlstore.Container
	logger    *logger.Logger

	events   chan TransportEvent
	messages chan model.IncomingMessage

	mu        sync.Mutex
	client    *whatsmeow.Client
	needReset bool
	qrCancel  context.CancelFunc
}

// NewWhatsAppService opens the device store and prepares a client for the
// first stored device, or a fresh one when nothing is paired yet.
func NewWhatsAppService(ctx context.Context, cfg *config.WhatsAppConfig, log *logger.Logger) (*WhatsAppService, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", cfg.DBPath), waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 256
	}

	s := &WhatsAppService{
		container: container,
		logger:    log.WithComponent("whatsapp"),
		events:    make(chan TransportEvent, 16),
		messages:  make(chan model.IncomingMessage, buffer),
	}
	s.client = s.newClient(deviceStore)
	return s, nil
}

func (s *WhatsAppService) newClient(device *store.Device) *whatsmeow.Client {
	client := whatsmeow.NewClient(device, waLog.Noop)
	client.AddEventHandler(s.handleEvent)
	return client
}

// Events returns the lifecycle event stream
func (s *WhatsAppService) Events() <-chan TransportEvent {
	return s.events
}

// Messages returns the inbound customer message stream
func (s *WhatsAppService) Messages() <-chan model.IncomingMessage {
	return s.messages
}

// HasSession reports whether a paired device is stored
func (s *WhatsAppService) HasSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.needReset && s.client.Store.ID != nil
}

// Connect opens the socket. Without a paired device it first subscribes to
// pairing codes, which are forwarded on Events until pairing ends.
func (s *WhatsAppService) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.needReset {
		// The previous device was logged out and its keys deleted.
		s.client = s.newClient(s.container.NewDevice())
		s.needReset = false
	}

	if s.client.Store.ID == nil {
		// The QR channel outlives the request that asked for it.
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := s.client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		s.qrCancel = cancel
		go s.forwardPairing(qrChan)
		s.logger.Info("No paired device found, starting QR code pairing")
	} else {
		s.logger.Info("Existing session found, connecting", "jid", s.client.Store.ID.String())
	}

	if err := s.client.Connect(); err != nil {
		s.stopPairingLocked()
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (s *WhatsAppService) forwardPairing(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			s.emit(TransportEvent{Kind: TransportPairingCode, Code: item.Code})
		case "success":
			s.logger.Info("Pairing successful")
		case "timeout":
			s.logger.Warn("QR code was not scanned in time")
			s.emit(TransportEvent{Kind: TransportSessionLost, Reason: "pairing timed out"})
		default:
			s.logger.Error("Pairing failed", "event", item.Event, "error", item.Error)
			s.emit(TransportEvent{Kind: TransportSessionLost, Reason: "pairing failed: " + item.Event})
		}
	}
}

func (s *WhatsAppService) stopPairingLocked() {
	if s.qrCancel != nil {
		s.qrCancel()
		s.qrCancel = nil
	}
}

// Disconnect logs the device out and closes the socket. The next Connect
// starts a fresh pairing.
func (s *WhatsAppService) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopPairingLocked()

	wasPaired := s.client.Store.ID != nil
	var logoutErr error
	if wasPaired && s.client.IsConnected() {
		logoutErr = s.client.Logout(ctx)
	}
	s.client.Disconnect()
	if wasPaired && logoutErr == nil && s.client.Store.ID == nil {
		s.needReset = true
	}

	if logoutErr != nil {
		return fmt.Errorf("failed to log out: %w", logoutErr)
	}
	return nil
}

// Close drops the socket without logging out. Used at shutdown.
func (s *WhatsAppService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopPairingLocked()
	s.client.Disconnect()
	s.logger.Info("WhatsApp client disconnected")
}

func (s *WhatsAppService) current() *whatsmeow.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Identity describes the logged-in account. Returns nil when not paired.
func (s *WhatsAppService) Identity(ctx context.Context) (*model.BotInfo, error) {
	client := s.current()
	if client.Store.ID == nil {
		return nil, nil
	}

	own := client.Store.ID.ToNonAD()
	info := &model.BotInfo{
		Name:  client.Store.PushName,
		Phone: own.User,
	}

	pic, err := client.GetProfilePictureInfo(own, &whatsmeow.GetProfilePictureParams{})
	if err != nil {
		s.logger.Debug("Own profile picture unavailable", "error", err)
	} else if pic != nil {
		info.PhotoURL = pic.URL
	}
	return info, nil
}

// SendText delivers a text message to a phone number
func (s *WhatsAppService) SendText(ctx context.Context, phone, text string) error {
	client := s.current()
	if !client.IsConnected() || !client.IsLoggedIn() {
		return ErrNotConnected
	}

	jid, err := s.resolveJID(client, phone)
	if err != nil {
		return err
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// ProfilePictureURL returns the public picture of a contact
func (s *WhatsAppService) ProfilePictureURL(ctx context.Context, phone string) (string, error) {
	client := s.current()
	if !client.IsConnected() || !client.IsLoggedIn() {
		return "", ErrNotConnected
	}

	jid, err := s.resolveJID(client, phone)
	if err != nil {
		return "", err
	}

	pic, err := client.GetProfilePictureInfo(jid, &whatsmeow.GetProfilePictureParams{})
	if errors.Is(err, whatsmeow.ErrProfilePictureNotSet) || errors.Is(err, whatsmeow.ErrProfilePictureUnauthorized) {
		return "", ErrNoProfilePicture
	}
	if err != nil {
		return "", fmt.Errorf("failed to get profile picture: %w", err)
	}
	if pic == nil || pic.URL == "" {
		return "", ErrNoProfilePicture
	}
	return pic.URL, nil
}

// resolveJID asks WhatsApp which variant of the number is registered. Brazilian
// mobiles may be registered with or without the ninth digit.
func (s *WhatsAppService) resolveJID(client *whatsmeow.Client, phone string) (types.JID, error) {
	variants := PhoneVariants(phone)
	if len(variants) == 0 {
		return types.JID{}, validationError("invalid phone number format")
	}

	query := make([]string, len(variants))
	for i, v := range variants {
		query[i] = "+" + v
	}

	resp, err := client.IsOnWhatsApp(query)
	if err != nil {
		return types.JID{}, fmt.Errorf("failed to check WhatsApp status: %w", err)
	}
	for _, r := range resp {
		if r.IsIn {
			return r.JID, nil
		}
	}
	return types.JID{}, fmt.Errorf("%w: %s", ErrNotOnWhatsApp, phone)
}

func (s *WhatsAppService) emit(evt TransportEvent) {
	s.events <- evt
}

// handleEvent handles whatsmeow events
func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.PairSuccess:
		s.logger.Info("Device paired", "jid", v.ID.String())
	case *events.Connected:
		s.mu.Lock()
		s.stopPairingLocked()
		s.mu.Unlock()
		s.emit(TransportEvent{Kind: TransportAuthenticated})
	case *events.Disconnected:
		// whatsmeow reconnects on its own
		s.logger.Warn("WhatsApp socket disconnected")
	case *events.LoggedOut:
		s.mu.Lock()
		s.needReset = true
		s.mu.Unlock()
		s.emit(TransportEvent{Kind: TransportSessionLost, Reason: "logged out: " + v.Reason.String()})
	case *events.StreamReplaced:
		s.dropSession("stream replaced by another client")
	case *events.TemporaryBan:
		s.dropSession("temporary ban: " + v.String())
	case *events.ClientOutdated:
		s.dropSession("client outdated")
	}
}

func (s *WhatsAppService) dropSession(reason string) {
	s.current().Disconnect()
	s.emit(TransportEvent{Kind: TransportSessionLost, Reason: reason})
}

func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Info.IsFromMe {
		return
	}

	msg := model.IncomingMessage{
		MessageID:  evt.Info.ID,
		FromPhone:  s.senderPhone(evt.Info.Sender),
		SenderName: evt.Info.PushName,
		Body:       messageText(evt.Message),
		IsGroup:    evt.Info.IsGroup,
		IsStatus:   evt.Info.Chat.Server == types.BroadcastServer,
		Timestamp:  evt.Info.Timestamp,
	}

	select {
	case s.messages <- msg:
	default:
		metrics.InboundMessagesTotal.WithLabelValues("dropped").Inc()
		s.logger.Error("Inbound queue full, message dropped", "from", msg.FromPhone, "message_id", msg.MessageID)
	}
}

// senderPhone maps a sender to its phone number, translating hidden-user ids
// through the device's LID mapping when one is known.
func (s *WhatsAppService) senderPhone(sender types.JID) string {
	if sender.Server == types.HiddenUserServer {
		client := s.current()
		pn, err := client.Store.LIDs.GetPNForLID(context.Background(), sender.ToNonAD())
		if err == nil && !pn.IsEmpty() {
			return pn.User
		}
		s.logger.Debug("No phone number known for LID sender", "lid", sender.String())
	}
	return sender.ToNonAD().User
}

func messageText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(msg.GetExtendedTextMessage().GetText())
}
