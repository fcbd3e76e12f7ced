package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sentinelids/sentinel/capture"
	"github.com/sentinelids/sentinel/config"
)

func NewAPIHandler(cfg *config.Config, session *capture.Session) *API {
	return &API{
		cfg:     cfg,
		session: session,
	}
}

func (api *API) RegisterEndpoints(mux *http.ServeMux) {
	api.mux = mux

	api.RegisterSessionApi()
	api.RegisterPacketsApi()
	api.RegisterSettingsApi()
}

func setJsonHeader(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	setJsonHeader(w)
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, StatusResponse{Success: false, Message: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// an absent body means "use the defaults"
		if errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// sessionState is shared by a few endpoints that report the session mode.
func (a *API) sessionState() SessionStateResponse {
	return SessionStateResponse{
		Status:        a.session.Status(),
		UsingFallback: a.session.UsingFallback(),
		Capturing:     a.session.IsCapturing(),
	}
}
