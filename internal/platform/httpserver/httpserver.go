package httpserver

import (
	"net/http"
	"time"

	"faucet/internal/platform/config"
)

// New builds the HTTP server. WriteTimeout must exceed the transfer timeout
// so a confirmed distribution can still be reported.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}
