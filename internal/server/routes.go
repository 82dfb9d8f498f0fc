package server

import (
	"net/http"
	"strings"
)

func NewMux(h *Handler) http.Handler {
	mux := http.NewServeMux()

	// Sessions
	mux.HandleFunc("POST /v1/sessions", h.HandleStartSession)
	mux.HandleFunc("GET /v1/sessions/{id}", h.HandleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.HandleAbandon)
	mux.HandleFunc("POST /v1/sessions/{id}/tasks/{task}/run", h.HandleRunTask)
	mux.HandleFunc("POST /v1/sessions/{id}/tasks/{task}/regenerate", h.HandleRegenerateTask)
	mux.HandleFunc("POST /v1/sessions/{id}/finalize", h.HandleFinalize)
	mux.HandleFunc("GET /v1/sessions/{id}/watch", h.HandleWatch)

	// One-shot analysis and chat
	mux.HandleFunc("POST /v1/analyze", h.HandleAnalyze)
	mux.HandleFunc("POST /v1/chat", h.HandleChat)

	mux.HandleFunc("GET /healthz", h.HandleHealth)

	return CORS(mux)
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, "+userHeader)
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
