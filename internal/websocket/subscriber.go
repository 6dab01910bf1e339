package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Subscriber is one live connection to the transparency feed. Subscribers
// only listen; anything they send is discarded.
type Subscriber struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte
}

func NewSubscriber(hub *Hub, conn *ws.Conn) *Subscriber {
	return &Subscriber{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Run attaches the subscriber to the hub and pumps the connection until it
// closes, then detaches.
func (s *Subscriber) Run(ctx context.Context) {
	s.hub.Attach(s)
	defer s.hub.Detach(s)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.writePump(ctx)
	s.readPump(ctx)
}

// readPump drains inbound frames. The first read error means the peer is
// gone and triggers cleanup.
func (s *Subscriber) readPump(ctx context.Context) {
	for {
		if _, _, err := s.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump forwards feed events to the connection and pings on an interval
// so stale peers are noticed.
func (s *Subscriber) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				// Hub detached us.
				return
			}
			if err := s.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
