package handler

import (
	"net/http"
	"strconv"

	"github.com/sentinelids/sentinel/capture"
)

func (api *API) RegisterPacketsApi() {
	api.mux.HandleFunc("/api/packets", api.getPackets)
	api.mux.HandleFunc("/api/packets/clear", api.clearPackets)
}

// getPackets returns the retained window, newest first. Query parameters
// narrow the result: protocol, threat, anomalous=true, q (free text), limit.
func (a *API) getPackets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()

	var packets []capture.Packet
	switch {
	case q.Get("q") != "":
		packets = a.session.SearchPackets(q.Get("q"))
	case q.Get("anomalous") == "true":
		packets = a.session.AnomalousPackets()
	case q.Get("threat") != "":
		packets = a.session.PacketsByThreatLevel(capture.ThreatLevel(q.Get("threat")))
	case q.Get("protocol") != "":
		packets = a.session.PacketsByProtocol(capture.NormalizeProtocol(q.Get("protocol")))
	default:
		packets = a.session.Packets()
	}

	total := len(packets)
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit < len(packets) {
			packets = packets[:limit]
		}
	}

	writeJSON(w, http.StatusOK, PacketsResponse{Packets: packets, Total: total})
}

func (a *API) clearPackets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	a.session.ClearPackets()
	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "Packet buffer cleared"})
}
