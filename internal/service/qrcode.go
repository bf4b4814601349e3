package service

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"
)

// QRRenderer renders pairing codes as PNG data URLs for the dashboard and,
// when a terminal writer is set, as a half-block QR on that terminal.
type QRRenderer struct {
	size     int
	terminal io.Writer
}

// NewQRRenderer creates a renderer. terminal may be nil.
func NewQRRenderer(terminal io.Writer) *QRRenderer {
	return &QRRenderer{size: 512, terminal: terminal}
}

// Render encodes code into a data URL
func (r *QRRenderer) Render(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, r.size)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	if r.terminal != nil {
		fmt.Fprintln(r.terminal, "\n📱 Scan this QR code in WhatsApp > Linked Devices:")
		qrterminal.GenerateHalfBlock(code, qrterminal.L, r.terminal)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
