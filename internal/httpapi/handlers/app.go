// Package handlers implements the public HTTP surface of the job service.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"happysd/internal/admission"
	"happysd/internal/domain"
)

// App bundles the handlers' collaborators.
type App struct {
	Gateway *admission.Gateway
	Jobs    domain.JobStore
	Users   domain.UserDirectory
	Logger  zerolog.Logger
}

// NewApp wires the handler set.
func NewApp(gateway *admission.Gateway, jobs domain.JobStore, users domain.UserDirectory, logger zerolog.Logger) *App {
	return &App{Gateway: gateway, Jobs: jobs, Users: users, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// msg is the error envelope every non-auth failure uses.
func (a *App) msg(w http.ResponseWriter, code int, text string) {
	a.json(w, code, map[string]string{"msg": text})
}

// unauthorized replies 401 with an empty body. Auth failures deliberately
// carry no detail.
func (a *App) unauthorized(w http.ResponseWriter) {
	w.WriteHeader(http.StatusUnauthorized)
}
