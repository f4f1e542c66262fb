package bot

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rso-iota/rso-bots/bot/handler"
)

func Route(control handler.BotControl, defaults handler.Defaults, ready func() bool, logger *slog.Logger) http.Handler {
	bots := handler.NewBotsHandler(control, defaults, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /health", handler.NewHealthHandler())
	mux.Handle("GET /health/ready", handler.NewReadyHandler(ready))
	mux.HandleFunc("GET /api/bots", bots.List)
	mux.HandleFunc("POST /api/bots", bots.Create)
	mux.HandleFunc("GET /api/bots/{id}", bots.Get)
	mux.HandleFunc("DELETE /api/bots/{id}", bots.Delete)
	return otelhttp.NewHandler(mux, "rso-bots")
}
