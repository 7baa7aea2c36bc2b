package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"ledger_go/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
	subBuffer  = 64
)

// WSServer exposes the hub over a websocket endpoint. Each connection is an
// independent subscriber; a broken or stalled socket detaches only itself.
type WSServer struct {
	hub      *Hub
	addr     string
	upgrader websocket.Upgrader
	server   *http.Server
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWSServer creates a websocket fan-out server on addr.
func NewWSServer(hub *Hub, addr string) *WSServer {
	return &WSServer{
		hub:  hub,
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start begins serving websocket subscriptions on /ws.
func (s *WSServer) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleWS(ctx, w, r)
	})
	s.server = &http.Server{Addr: s.addr, Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Broadcast server failed", slog.Any("error", err))
		}
	}()

	slog.Info("Broadcast server started", slog.String("addr", s.addr))
	return nil
}

// Stop shuts the server down and waits for connection goroutines.
func (s *WSServer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	s.wg.Wait()
}

func (s *WSServer) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", slog.Any("error", err))
		return
	}

	subID, events := s.hub.Subscribe(subBuffer)
	infra.GlobalMetrics.SetActiveSubscribers(int32(s.hub.SubscriberCount()))
	slog.Info("Broadcast subscriber attached", slog.String("subscriber", subID))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.hub.Unsubscribe(subID)
			infra.GlobalMetrics.SetActiveSubscribers(int32(s.hub.SubscriberCount()))
			conn.Close()
			slog.Info("Broadcast subscriber detached", slog.String("subscriber", subID))
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					slog.Warn("Broadcast marshal failed", slog.Any("error", err))
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					// Failure detaches this subscriber only
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}
