package relay

import (
	"fmt"
	"net/http"
	"strings"
)

// SSEHandler returns an http.HandlerFunc that streams broker events as SSE.
// Clients may filter kinds via ?kinds=name1,name2 query parameter.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var kindFilter map[string]bool
		if q := r.URL.Query().Get("kinds"); q != "" {
			kindFilter = make(map[string]bool)
			for _, k := range strings.Split(q, ",") {
				if k = strings.TrimSpace(k); k != "" {
					kindFilter[k] = true
				}
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if kindFilter != nil && !kindFilter[evt.Kind] {
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Kind, evt.Payload)
				flusher.Flush()
			}
		}
	}
}
