package events

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readDeadline = 60 * time.Second
	sendBuffer   = 64
)

// Subscriber is one websocket connection on the event feed. The feed is one way; inbound
// frames are read only to track liveness.
type Subscriber struct {
	ws           *websocket.Conn
	send         chan []byte
	logger       *zap.Logger
	writeTimeout time.Duration
	onClose      func(*Subscriber)

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewSubscriber wraps an upgraded connection.
func NewSubscriber(ws *websocket.Conn, writeTimeout time.Duration, logger *zap.Logger, onClose func(*Subscriber)) *Subscriber {
	return &Subscriber{
		ws:           ws,
		send:         make(chan []byte, sendBuffer),
		logger:       logger,
		writeTimeout: writeTimeout,
		onClose:      onClose,
		done:         make(chan struct{}),
	}
}

// Start runs the read and write pumps until the connection closes or ctx is done.
func (s *Subscriber) Start(ctx context.Context) {
	go s.writePump(ctx)
	s.readPump(ctx)
}

func (s *Subscriber) readPump(ctx context.Context) {
	defer s.cleanup()
	s.ws.SetReadLimit(4096)
	_ = s.ws.SetReadDeadline(time.Now().Add(readDeadline))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := s.ws.ReadMessage(); err != nil {
			s.logger.Debug("event subscriber closed", zap.Error(err))
			return
		}
	}
}

func (s *Subscriber) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = s.ws.Close()
			return
		case <-s.done:
			return
		case msg := <-s.send:
			if err := s.write(websocket.TextMessage, msg); err != nil {
				_ = s.ws.Close()
				return
			}
		}
	}
}

// Send queues msg, dropping it when the subscriber is not keeping up.
func (s *Subscriber) Send(msg []byte) {
	select {
	case <-s.done:
	case s.send <- msg:
	default:
		s.logger.Warn("dropping event, subscriber buffer full")
	}
}

// Ping sends a websocket ping.
func (s *Subscriber) Ping() error {
	return s.write(websocket.PingMessage, []byte("ping"))
}

func (s *Subscriber) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.ws.WriteMessage(messageType, data)
}

func (s *Subscriber) cleanup() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.ws.Close()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}
