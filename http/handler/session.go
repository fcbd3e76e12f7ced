package handler

import (
	"net/http"

	"github.com/sentinelids/sentinel/log"
)

func (api *API) RegisterSessionApi() {
	api.mux.HandleFunc("/api/session", api.handleSession)
	api.mux.HandleFunc("/api/session/connect", api.connectBackend)
	api.mux.HandleFunc("/api/session/disconnect", api.disconnectBackend)
	api.mux.HandleFunc("/api/capture/start", api.startCapture)
	api.mux.HandleFunc("/api/capture/stop", api.stopCapture)
	api.mux.HandleFunc("/api/model", api.getModelInfo)
	api.mux.HandleFunc("/api/interfaces", api.getInterfaces)
	api.mux.HandleFunc("/api/stats", api.getStats)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.sessionState())
}

func (a *API) connectBackend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ConnectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wsURL := req.URL
	if wsURL == "" {
		a.cfgMu.Lock()
		wsURL = a.cfg.Backend.URL
		a.cfgMu.Unlock()
	}

	connected := a.session.ConnectRemote(r.Context(), wsURL)
	if !connected {
		log.Infof("Backend connection failed, continuing with simulated traffic")
	}

	writeJSON(w, http.StatusOK, ConnectResponse{
		Success:       true,
		Connected:     connected,
		UsingFallback: a.session.UsingFallback(),
		Status:        a.session.Status(),
	})
}

func (a *API) disconnectBackend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	a.session.Disconnect()
	writeJSON(w, http.StatusOK, a.sessionState())
}

func (a *API) startCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req CaptureStartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := a.session.StartCapture(req.Interface, req.Filter); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "Capture started"})
}

func (a *API) stopCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := a.session.StopCapture(); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "Capture stopped"})
}

func (a *API) getModelInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	info, err := a.session.GetModelInfo(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) getInterfaces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, InterfacesResponse{Interfaces: a.session.Interfaces()})
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.session.Stats())
}
