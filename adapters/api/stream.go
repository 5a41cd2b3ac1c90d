package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/internal"
)

// allExperiments is the subscription key for clients not filtering by experiment
const allExperiments core.ExperimentID = ""

// KeepAlive is how often an idle stream is pinged
var KeepAlive = 30 * time.Second

// SignalHub fans monitor signals out to Server-Sent Events clients.
// It implements ports.SignalSink.
type SignalHub struct {
	mu      sync.RWMutex
	clients map[core.ExperimentID]map[chan domain.Signal]struct{}
	logger  *internal.Logger
}

// NewSignalHub creates an empty hub
func NewSignalHub(logger *internal.Logger) *SignalHub {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &SignalHub{
		clients: make(map[core.ExperimentID]map[chan domain.Signal]struct{}),
		logger:  logger,
	}
}

// Subscribe registers a buffered channel for one experiment, or all when id is empty
func (h *SignalHub) Subscribe(id core.ExperimentID) chan domain.Signal {
	ch := make(chan domain.Signal, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[id] == nil {
		h.clients[id] = make(map[chan domain.Signal]struct{})
	}
	h.clients[id][ch] = struct{}{}
	h.logger.Debug("SSE client subscribed to %q (%d clients)", id, len(h.clients[id]))
	return ch
}

// Unsubscribe removes and closes ch
func (h *SignalHub) Unsubscribe(id core.ExperimentID, ch chan domain.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[id]
	if !ok {
		return
	}
	if _, ok := clients[ch]; !ok {
		return
	}
	delete(clients, ch)
	close(ch)
	if len(clients) == 0 {
		delete(h.clients, id)
	}
}

// Emit delivers sig to subscribers of its experiment and to unfiltered ones.
// Slow clients miss signals rather than block the monitor.
func (h *SignalHub) Emit(_ context.Context, sig domain.Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range []core.ExperimentID{sig.ExperimentID, allExperiments} {
		for ch := range h.clients[key] {
			select {
			case ch <- sig:
			default:
				h.logger.Warn("SSE client channel full for %q, dropping %s", key, sig.Kind)
			}
		}
		if sig.ExperimentID == allExperiments {
			break
		}
	}
}

// ClientCount returns the number of subscribers for an experiment key
func (h *SignalHub) ClientCount(id core.ExperimentID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[id])
}

// HandleSSE streams signals, optionally filtered by ?experiment_id=
func (h *SignalHub) HandleSSE(c *gin.Context) {
	id := core.ExperimentID(c.Query("experiment_id"))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	ch := h.Subscribe(id)
	c.Writer.Flush()
	defer h.Unsubscribe(id, ch)

	ctx := c.Request.Context()
	ticker := time.NewTicker(KeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case sig, ok := <-ch:
			if !ok {
				return false
			}
			payload, err := json.Marshal(sig)
			if err != nil {
				h.logger.Error("Failed to marshal signal: %v", err)
				return true
			}
			c.SSEvent("signal", string(payload))
			return true
		case <-ticker.C:
			c.SSEvent("ping", `{"status":"alive"}`)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
