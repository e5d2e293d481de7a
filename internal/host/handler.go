package host

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lambda-feedback/agenthost/internal/server"
	"github.com/lambda-feedback/agenthost/internal/window"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type AuthConfig struct {
	// Key is required in the api-key header, or the key query parameter,
	// if set.
	Key string `conf:"key"`
}

type HandlerParams struct {
	fx.In

	Host *Host
	Auth AuthConfig
	Log  *zap.Logger
}

// WindowHandler upgrades requests to websocket windows.
type WindowHandler struct {
	host *Host
	auth AuthConfig
	log  *zap.Logger
}

func NewWindowHandler(params HandlerParams) *WindowHandler {
	return &WindowHandler{
		host: params.Host,
		auth: params.Auth,
		log:  params.Log.Named("window_handler"),
	}
}

func (h *WindowHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(zap.String("remote", r.RemoteAddr))

	if !authorized(h.auth, r) {
		log.Debug("unauthorized request")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sock, err := window.Upgrade(w, r, h.log)
	if err != nil {
		log.Debug("failed to upgrade", zap.Error(err))
		return
	}

	if err := h.host.OpenWindow(r.Context(), sock); err != nil {
		if errors.Is(err, ErrWindowBusy) {
			log.Info("rejecting window, another one is open")
			sock.Reject(err)
		}
		return
	}

	// the window lives as long as the host, not the request
	if err := sock.Serve(h.host.ctx); err != nil {
		log.Debug("window connection failed", zap.Error(err))
	}
}

// StatusHandler reports the host status as json.
type StatusHandler struct {
	host *Host
	auth AuthConfig
	log  *zap.Logger
}

func NewStatusHandler(params HandlerParams) *StatusHandler {
	return &StatusHandler{
		host: params.Host,
		auth: params.Auth,
		log:  params.Log.Named("status_handler"),
	}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !authorized(h.auth, r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(h.host.Status()); err != nil {
		h.log.Debug("failed to write response", zap.Error(err))
	}
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func NewWindowRoute(handler *WindowHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("/window", handler)
}

func NewStatusRoute(handler *StatusHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("/status", handler)
}

func NewHealthRoute() server.HttpHandlerResult {
	return server.AsHttpHandler("/health", http.HandlerFunc(HealthHandler))
}

func authorized(auth AuthConfig, r *http.Request) bool {
	if auth.Key == "" {
		return true
	}

	if r.Header.Get("api-key") == auth.Key {
		return true
	}

	return r.URL.Query().Get("key") == auth.Key
}
