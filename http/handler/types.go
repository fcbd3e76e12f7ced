package handler

import (
	"net/http"
	"sync"

	"github.com/sentinelids/sentinel/capture"
	"github.com/sentinelids/sentinel/config"
)

type API struct {
	cfg     *config.Config
	cfgMu   sync.Mutex // guards cfg reads/writes across concurrent requests
	mux     *http.ServeMux
	session *capture.Session
}

// Response types for API endpoints

type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type ConnectRequest struct {
	URL string `json:"url,omitempty"`
}

type ConnectResponse struct {
	Success       bool               `json:"success"`
	Connected     bool               `json:"connected"`
	UsingFallback bool               `json:"using_fallback"`
	Status        capture.ConnStatus `json:"connection_status"`
	Message       string             `json:"message,omitempty"`
}

type SessionStateResponse struct {
	Status        capture.ConnStatus `json:"connection_status"`
	UsingFallback bool               `json:"using_fallback"`
	Capturing     bool               `json:"is_capturing"`
}

type CaptureStartRequest struct {
	Interface string `json:"interface,omitempty"`
	Filter    string `json:"filter,omitempty"`
}

type PacketsResponse struct {
	Packets []capture.Packet `json:"packets"`
	Total   int              `json:"total"`
}

type InterfacesResponse struct {
	Interfaces []capture.Interface `json:"interfaces"`
}

type SettingsResponse struct {
	Theme string `json:"theme"`
}

type SettingsUpdateRequest struct {
	Theme string `json:"theme"`
}
