package model

import "time"

// Order is one tracked purchase, keyed by the customer's normalized phone
type Order struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"nome"`
	Phone              string     `json:"telefone"`
	Product            string     `json:"produto"`
	TrackingCode       *string    `json:"codigoRastreio"`
	CarrierStatus      *string    `json:"statusInterno"`
	LastLocation       string     `json:"ultimaLocalizacao"`
	LastUpdate         string     `json:"ultimaAtualizacao"`
	LastNotifiedStatus *string    `json:"mensagemUltimoStatus"`
	UnreadCount        int        `json:"mensagensNaoLidas"`
	LastMessage        string     `json:"ultimaMensagem"`
	LastMessageAt      *time.Time `json:"ultimaMensagemEm"`
	ProfilePictureURL  string     `json:"fotoPerfilUrl"`
	CreatedAt          time.Time  `json:"dataCriacao"`
}

// NewOrder holds the fields accepted when creating an order
type NewOrder struct {
	Name              string  `json:"nome"`
	Phone             string  `json:"telefone"`
	Product           string  `json:"produto"`
	TrackingCode      *string `json:"codigoRastreio"`
	ProfilePictureURL string  `json:"-"`
}

// OrderUpdate is a partial update; nil fields are left untouched.
// An empty string clears the nullable columns.
type OrderUpdate struct {
	Name               *string `json:"nome,omitempty"`
	Phone              *string `json:"telefone,omitempty"`
	Product            *string `json:"produto,omitempty"`
	TrackingCode       *string `json:"codigoRastreio,omitempty"`
	CarrierStatus      *string `json:"statusInterno,omitempty"`
	LastLocation       *string `json:"ultimaLocalizacao,omitempty"`
	LastUpdate         *string `json:"ultimaAtualizacao,omitempty"`
	LastNotifiedStatus *string `json:"-"`
	ProfilePictureURL  *string `json:"-"`
}

// IsEmpty reports whether the update carries no field
func (u OrderUpdate) IsEmpty() bool {
	return u.Name == nil && u.Phone == nil && u.Product == nil &&
		u.TrackingCode == nil && u.CarrierStatus == nil &&
		u.LastLocation == nil && u.LastUpdate == nil &&
		u.LastNotifiedStatus == nil && u.ProfilePictureURL == nil
}

// PostbackPayload is the checkout notification sent by external sales platforms
type PostbackPayload struct {
	CustomerName  string `json:"nome_cliente"`
	CustomerPhone string `json:"celular_cliente"`
	ProductName   string `json:"nome_produto"`
}

// StringValue dereferences a nullable column
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
