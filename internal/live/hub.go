// Package live pushes evaluation results summaries to trainer dashboards
// over WebSocket.
package live

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-formations/internal/quiz"
)

const (
	sendBuffer   = 8
	writeTimeout = 5 * time.Second
)

// SummaryFunc loads the current summary sent when a client connects.
type SummaryFunc func(ctx context.Context, evaluationID string) (quiz.ResultsSummary, error)

type subscriber struct {
	send chan quiz.ResultsSummary
}

// Hub fans summaries out to the subscribers of each evaluation.
type Hub struct {
	subs map[string]map[*subscriber]struct{}
	mu   sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*subscriber]struct{}),
	}
}

// Publish delivers s to every subscriber of its evaluation. A subscriber
// whose buffer is full misses the update; the next one supersedes it.
func (h *Hub) Publish(s quiz.ResultsSummary) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[s.EvaluationID] {
		select {
		case sub.send <- s:
		default:
			slog.Warn("live subscriber lagging, dropping summary", "evaluation_id", s.EvaluationID)
		}
	}
}

// Subscribers returns the number of open subscriptions for an evaluation.
func (h *Hub) Subscribers(evaluationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[evaluationID])
}

func (h *Hub) subscribe(evaluationID string) (*subscriber, func()) {
	sub := &subscriber{send: make(chan quiz.ResultsSummary, sendBuffer)}

	h.mu.Lock()
	if h.subs[evaluationID] == nil {
		h.subs[evaluationID] = make(map[*subscriber]struct{})
	}
	h.subs[evaluationID][sub] = struct{}{}
	h.mu.Unlock()

	return sub, func() {
		h.mu.Lock()
		delete(h.subs[evaluationID], sub)
		if len(h.subs[evaluationID]) == 0 {
			delete(h.subs, evaluationID)
		}
		h.mu.Unlock()
	}
}

// Handler upgrades GET /evaluations/{evaluationID}/live, sends the current
// summary and then every published one until the client goes away.
func (h *Hub) Handler(current SummaryFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		evaluationID := r.PathValue("evaluationID")

		// Subscribe before loading the initial summary so a publish in
		// between is queued rather than lost.
		sub, unsubscribe := h.subscribe(evaluationID)
		defer unsubscribe()

		initial, err := current(r.Context(), evaluationID)
		if err != nil {
			slog.Warn("live summary unavailable", "evaluation_id", evaluationID, "error", err)
			http.Error(w, "evaluation not available", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Warn("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		// Clients only listen; CloseRead handles their control frames and
		// cancels ctx when they disconnect.
		ctx := conn.CloseRead(r.Context())
		slog.Info("live subscriber connected", "evaluation_id", evaluationID)

		if err := write(ctx, conn, initial); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				slog.Info("live subscriber disconnected", "evaluation_id", evaluationID)
				return
			case s := <-sub.send:
				if err := write(ctx, conn, s); err != nil {
					slog.Warn("live write failed", "evaluation_id", evaluationID, "error", err)
					return
				}
			}
		}
	})
}

func write(ctx context.Context, conn *websocket.Conn, s quiz.ResultsSummary) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, s)
}
