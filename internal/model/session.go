package model

// SessionStatus is the messaging session lifecycle phase
type SessionStatus string

const (
	SessionDisconnected    SessionStatus = "DISCONNECTED"
	SessionConnecting      SessionStatus = "CONNECTING"
	SessionAwaitingPairing SessionStatus = "QR_CODE"
	SessionConnected       SessionStatus = "CONNECTED"
)

// BotInfo describes the account the session is logged in as
type BotInfo struct {
	Name     string `json:"nome"`
	Phone    string `json:"numero"`
	PhotoURL string `json:"fotoUrl,omitempty"`
}

// SessionState is a snapshot of the messaging session.
// QRCode is only set while awaiting pairing, BotInfo only while connected.
type SessionState struct {
	Status  SessionStatus `json:"status"`
	QRCode  string        `json:"qrCode,omitempty"`
	BotInfo *BotInfo      `json:"botInfo,omitempty"`
}
