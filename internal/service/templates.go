package service

import (
	"strings"

	"rastreio-bot/internal/model"
)

const welcomeTemplate = "🎉 Parabéns pela sua compra do {produto}, {nome}! Em até 24h receberá o seu código de rastreio."

// statusTemplates maps a normalized carrier status to its notification
var statusTemplates = map[string]string{
	"postado":           "📦 Olá {nome}! O seu pedido do {produto} foi postado. Código: {codigo}.",
	"objeto expedido":   "✈️ Olá {nome}, boa notícia! O seu pedido foi expedido e está a caminho.",
	"em trânsito":       "🚚 Olá {nome}! O seu pedido do {produto} está em trânsito. Acompanhe pelo código {codigo}.",
	"saiu para entrega": "🛵 Olá {nome}! O seu pedido saiu para entrega e chega hoje. Fique atento!",
	"entregue":          "✅ Olá {nome}! O seu pedido do {produto} foi entregue. Obrigado pela compra!",
}

// NormalizeStatus lowercases and trims a carrier status
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func renderTemplate(tmpl string, order *model.Order) string {
	r := strings.NewReplacer(
		"{nome}", order.Name,
		"{produto}", order.Product,
		"{codigo}", model.StringValue(order.TrackingCode),
	)
	return r.Replace(tmpl)
}
