package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/bridge/registry"
)

var (
	ErrSendBufferFull = errors.New("ws: send buffer full")
	ErrReplyTimeout   = errors.New("ws: reply timed out")
	ErrClosed         = errors.New("ws: connection closed")
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second

	// replyBuffer bounds queued acks and errors. Replies block, so the
	// buffer only absorbs bursts.
	replyBuffer = 8
)

type Server struct {
	reg        *registry.Registry
	log        logrus.FieldLogger
	sendBuffer int

	upgrader websocket.Upgrader
}

func NewServer(reg *registry.Registry, sendBuffer int, logger logrus.FieldLogger) *Server {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Server{
		reg:        reg,
		log:        logger.WithField("component", "ws"),
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// conn adapts a websocket to registry.Conn. Send only queues; the writer
// goroutine owns the socket's write side. Replies use their own lane so a
// backlog of state frames never costs a client its ack.
type conn struct {
	id      string
	out     chan []byte
	replies chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(buffer int) *conn {
	return &conn{
		id:      registry.NewID(),
		out:     make(chan []byte, buffer),
		replies: make(chan []byte, replyBuffer),
		done:    make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Send(b []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Reply queues an ack or error, waiting up to the write timeout for room.
func (c *conn) Reply(b []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	case c.replies <- b:
		return nil
	default:
	}
	t := time.NewTimer(writeTimeout)
	defer t.Stop()
	select {
	case <-c.done:
		return ErrClosed
	case c.replies <- b:
		return nil
	case <-t.C:
		return ErrReplyTimeout
	}
}

// next returns the next frame to write, replies first.
func (c *conn) next(ctx context.Context) ([]byte, bool) {
	select {
	case b := <-c.replies:
		return b, true
	default:
	}
	select {
	case <-ctx.Done():
		return nil, false
	case <-c.done:
		return nil, false
	case b := <-c.replies:
		return b, true
	case b := <-c.out:
		return b, true
	}
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		c := newConn(s.sendBuffer)
		log := s.log.WithField("conn", c.id)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				b, ok := c.next(ctx)
				if !ok {
					return
				}
				_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
					log.WithError(err).Debug("write failed")
					cancel()
					_ = c.Close()
					return
				}
			}
		}()

		if err := s.reg.Register(c); err != nil {
			log.WithError(err).Warn("greeting failed")
		}

		// Reader loop.
		for {
			_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := ws.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.WithError(err).Debug("read ended")
				}
				break
			}
			s.reg.Dispatch(ctx, c, msg)
		}

		// Cleanup.
		s.reg.Unregister(c)
		_ = c.Close()
	}
}
