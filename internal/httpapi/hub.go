package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-lesson/internal/records"
)

const (
	subscriberBuffer = 8
	writeTimeout     = 5 * time.Second
)

type feedKey struct {
	userID   string
	courseID string
}

// Hub fans out module completions to connected progress feeds. It
// implements records.Notifier.
type Hub struct {
	mu   sync.Mutex
	subs map[feedKey]map[chan records.Completion]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[feedKey]map[chan records.Completion]struct{})}
}

// Subscribe registers for completions of userID within courseID. The returned
// func unsubscribes and must be called once.
func (h *Hub) Subscribe(userID, courseID string) (<-chan records.Completion, func()) {
	key := feedKey{userID: userID, courseID: courseID}
	ch := make(chan records.Completion, subscriberBuffer)

	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan records.Completion]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[key], ch)
		if len(h.subs[key]) == 0 {
			delete(h.subs, key)
		}
	}
}

// ModuleCompleted delivers c to matching subscribers. Slow subscribers miss
// the event rather than block the caller.
func (h *Hub) ModuleCompleted(c records.Completion) {
	key := feedKey{userID: c.UserID, courseID: c.CourseID}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[key] {
		select {
		case ch <- c:
		default:
			slog.Warn("progress subscriber lagging, dropping event",
				"user_id", c.UserID, "course_id", c.CourseID, "module_id", c.ModuleID)
		}
	}
}

// Subscribers returns the number of open feeds for a user and course.
func (h *Hub) Subscribers(userID, courseID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[feedKey{userID: userID, courseID: courseID}])
}

// handleProgressFeed streams course progress over a websocket: a snapshot on
// connect, then one message per completion.
func (s *Server) handleProgressFeed(w http.ResponseWriter, r *http.Request, userID string) {
	courseID := r.PathValue("courseID")

	// Subscribe before reading the snapshot so no completion falls between.
	events, unsubscribe := s.hub.Subscribe(userID, courseID)
	defer unsubscribe()

	completed, total, err := s.svc.CourseProgress(r.Context(), userID, courseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", userID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	if err := writeFeed(ctx, conn, progressResponse{CourseID: courseID, Completed: completed, Total: total}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case c := <-events:
			msg := progressResponse{CourseID: c.CourseID, Completed: c.Completed, Total: c.Total}
			if err := writeFeed(ctx, conn, msg); err != nil {
				slog.Debug("progress feed closed", "user_id", userID, "error", err)
				return
			}
		}
	}
}

func writeFeed(ctx context.Context, conn *websocket.Conn, msg progressResponse) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
