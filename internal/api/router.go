package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/loops", h.LoopsStatus)
	mux.HandleFunc("POST /v1/loops/{name}/start", h.LoopStart)
	mux.HandleFunc("POST /v1/loops/{name}/stop", h.LoopStop)
	mux.HandleFunc("POST /v1/loops/{name}/run", h.LoopRun)

	mux.HandleFunc("GET /v1/limits", h.Limits)
	mux.HandleFunc("GET /v1/messages", h.ListMessages)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("callout-delivery"))
	})

	return mux
}
