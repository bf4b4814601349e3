package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rastreio-bot/internal/middleware"
	"rastreio-bot/pkg/logger"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Health      *HealthHandler
	Orders      *OrderHandler
	Session     *SessionHandler
	Integration *IntegrationHandler
	Realtime    http.Handler
}

// NewRouter builds the HTTP routes
func NewRouter(h Handlers, auth *middleware.AuthMiddleware, allowedOrigins []string, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health.CheckHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.With(auth.Authenticate).Handle("/ws", h.Realtime)

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.Authenticate)

		api.Route("/pedidos", func(p chi.Router) {
			p.Get("/", h.Orders.List)
			p.Post("/", h.Orders.Create)
			p.Route("/{id}", func(o chi.Router) {
				o.Put("/", h.Orders.Update)
				o.Delete("/", h.Orders.Delete)
				o.Get("/historico", h.Orders.History)
				o.Post("/enviar-mensagem", h.Orders.SendMessage)
				o.Post("/atualizar-foto", h.Orders.RefreshPicture)
				o.Put("/marcar-como-lido", h.Orders.MarkRead)
			})
		})

		api.Post("/integracao/postback", h.Integration.Postback)

		api.Route("/whatsapp", func(wa chi.Router) {
			wa.Get("/status", h.Session.Status)
			wa.Post("/connect", h.Session.Connect)
			wa.Post("/disconnect", h.Session.Disconnect)
		})
	})

	return r
}
