package httpapi

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
)

// Events streams reference invalidations affecting the caller as SSE.
func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if a.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "live updates disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.hub.Subscribe(ctx, s.Scope())

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: invalidation\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
