package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Mux is the subset of *http.ServeMux the routes are registered on.
type Mux interface {
	Handle(pattern string, h http.Handler)
}

// RegisterRoutes mounts the status-stream endpoints:
//
//	/ws            websocket; ?channels=cycle,orders&last_ts=RFC3339
//	/api/latest    latest payload per channel
//	/api/missed    ?channel=cycle&after=N envelopes published after seq N
//	/api/stats     per-channel seq, drops and fan-out timing
func RegisterRoutes(mux Mux, hub *Hub) {
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))

	mux.Handle("/api/latest", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Latest())
	}))

	mux.Handle("/api/missed", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		channel := q.Get("channel")
		after, err := strconv.ParseInt(q.Get("after"), 10, 64)
		if channel == "" || err != nil || after < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel and after are required"})
			return
		}
		raw, complete := hub.Missed(channel, after)
		out := make([]json.RawMessage, len(raw))
		for i, b := range raw {
			out[i] = b
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"channel":     channel,
			"channel_seq": hub.ChannelSeq(channel),
			"complete":    complete,
			"messages":    out,
		})
	}))

	mux.Handle("/api/stats", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Stats())
	}))
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	var channels []string
	if v := r.URL.Query().Get("channels"); v != "" {
		channels = strings.Split(v, ",")
	}
	var lastTS time.Time
	if v := r.URL.Query().Get("last_ts"); v != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			lastTS = parsed
		}
	}
	h.register(conn, channels, lastTS)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
