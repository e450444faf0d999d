// Package observer serves a read-only feed of broadcast snapshots to local
// watchers. Watchers never submit commands.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/observerproto"
	"simbridge.ai/internal/protocol"
)

type watcher struct {
	id  string
	out chan []byte
}

type Server struct {
	log logrus.FieldLogger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	watchers map[string]*watcher
	latest   *protocol.Snapshot
	frame    []byte
	dropped  atomic.Uint64
}

func NewServer(logger logrus.FieldLogger) *Server {
	return &Server{
		log: logger.WithField("component", "observer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		watchers: map[string]*watcher{},
	}
}

// Broadcast caches snap and fans it out to every watcher. A watcher whose
// buffer is full loses the frame.
func (s *Server) Broadcast(snap *protocol.Snapshot) {
	b, err := json.Marshal(protocol.NewState(snap))
	if err != nil {
		s.log.WithError(err).Error("marshal state")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = snap
	s.frame = b
	for _, w := range s.watchers {
		select {
		case w.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// Dropped counts frames lost to slow watchers.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		s.mu.Lock()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Watchers:        len(s.watchers),
			State:           s.latest,
		}
		if s.latest != nil {
			resp.Tick = s.latest.Tick
		}
		s.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) join() (*watcher, []byte) {
	w := &watcher{
		id:  fmt.Sprintf("O%d", s.nextID.Add(1)),
		out: make(chan []byte, 8),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[w.id] = w
	return w, s.frame
}

func (s *Server) leave(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, w.id)
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		w, latest := s.join()
		defer s.leave(w)
		log := s.log.WithField("watcher", w.id)

		hello, _ := json.Marshal(observerproto.NewHello(w.id))
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
			return
		}
		if latest != nil {
			if err := conn.WriteMessage(websocket.TextMessage, latest); err != nil {
				return
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-w.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: inbound frames are ignored; it only notices the close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				log.WithError(err).Debug("watcher left")
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
