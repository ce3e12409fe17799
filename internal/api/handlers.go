package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/calloutcrm/delivery/internal/dispatch"
	"github.com/calloutcrm/delivery/internal/model"
	"github.com/calloutcrm/delivery/internal/ratelimit"
	"github.com/calloutcrm/delivery/internal/repo"
	"github.com/calloutcrm/delivery/internal/scheduler"
)

// Handler exposes the operational surface of the delivery pipeline: loop
// control, limiter introspection and the outbound message log.
type Handler struct {
	loops    map[string]*scheduler.Loop
	messages repo.MessageStore
	limiter  ratelimit.Limiter
}

func NewHandler(loops []*scheduler.Loop, messages repo.MessageStore, limiter ratelimit.Limiter) *Handler {
	byName := make(map[string]*scheduler.Loop, len(loops))
	for _, l := range loops {
		byName[l.Name()] = l
	}
	return &Handler{loops: byName, messages: messages, limiter: limiter}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) LoopsStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]any, len(h.loops))
	for name, l := range h.loops {
		status[name] = map[string]any{
			"running":      l.IsRunning(),
			"tickInFlight": l.TickInFlight(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"loops": status})
}

func (h *Handler) LoopStart(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loop(w, r)
	if !ok {
		return
	}
	l.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": l.IsRunning()})
}

func (h *Handler) LoopStop(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loop(w, r)
	if !ok {
		return
	}
	l.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": l.IsRunning()})
}

// LoopRun triggers one tick immediately. A tick already in flight is not
// queued behind; the caller gets a 409 and can try again later.
func (h *Handler) LoopRun(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loop(w, r)
	if !ok {
		return
	}
	if !l.TriggerNow(r.Context()) {
		writeJSON(w, http.StatusConflict, map[string]any{"triggered": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triggered": true})
}

func (h *Handler) loop(w http.ResponseWriter, r *http.Request) (*scheduler.Loop, bool) {
	name := r.PathValue("name")
	l, ok := h.loops[name]
	if !ok {
		http.Error(w, "unknown loop: "+name, http.StatusNotFound)
		return nil, false
	}
	return l, true
}

// Limits reports the remaining send allowance for one contact and channel
// without consuming any of it.
func (h *Handler) Limits(w http.ResponseWriter, r *http.Request) {
	contactID, err := strconv.ParseInt(r.URL.Query().Get("contactId"), 10, 64)
	if err != nil {
		http.Error(w, "contactId must be an integer", http.StatusBadRequest)
		return
	}
	ch := model.Channel(strings.ToUpper(r.URL.Query().Get("channel")))
	if !ch.Schedulable() && ch != model.ChannelVoice {
		http.Error(w, "unknown channel: "+string(ch), http.StatusBadRequest)
		return
	}

	rem, err := h.limiter.Remaining(r.Context(), dispatch.RateKey(contactID, ch), dispatch.RateClass(ch))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	body := map[string]any{
		"contactId": contactID,
		"channel":   string(ch),
		"remaining": rem.Count,
	}
	if !rem.ResetAt.IsZero() {
		body["resetAt"] = rem.ResetAt
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.messages.ListRecent(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
