package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/negi-chat/internal/handler/chat"
	"github.com/zhouzirui/negi-chat/internal/middleware"
	chatService "github.com/zhouzirui/negi-chat/internal/service/chat"
	"github.com/zhouzirui/negi-chat/pkg/utils"
)

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// NewRouter wires HTTP routes to the conversation gateway.
func NewRouter(gateway *chatService.Service, opts Options, logger zerolog.Logger) http.Handler {
	policy := middleware.NewOriginPolicy(opts.AllowedOrigins)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireOrigin(policy, logger))
	r.Use(middleware.CORS(policy))
	if opts.MaxBodyBytes > 0 {
		r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))
	}

	chatHandler := chat.New(gateway, policy, opts.MaxBodyBytes, logger)
	chatHandler.RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: gateway.Sessions()})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
