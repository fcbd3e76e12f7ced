package handler

import (
	"net/http"

	"github.com/sentinelids/sentinel/log"
)

var validThemes = map[string]bool{
	"dark":  true,
	"light": true,
}

func (api *API) RegisterSettingsApi() {
	api.mux.HandleFunc("/api/settings", api.handleSettings)
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.cfgMu.Lock()
		theme := a.cfg.UI.Theme
		a.cfgMu.Unlock()
		writeJSON(w, http.StatusOK, SettingsResponse{Theme: theme})
	case http.MethodPut:
		a.updateSettings(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *API) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validThemes[req.Theme] {
		writeError(w, http.StatusBadRequest, "unknown theme: "+req.Theme)
		return
	}

	a.cfgMu.Lock()
	a.cfg.UI.Theme = req.Theme
	if a.cfg.ConfigPath != "" {
		if err := a.cfg.SaveToFile(a.cfg.ConfigPath); err != nil {
			a.cfgMu.Unlock()
			log.Errorf("Failed to persist settings: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to persist settings")
			return
		}
	}
	theme := a.cfg.UI.Theme
	a.cfgMu.Unlock()

	writeJSON(w, http.StatusOK, SettingsResponse{Theme: theme})
}
