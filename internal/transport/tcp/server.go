// Package tcp is the primary transport: a persistent byte stream per client
// carrying newline-delimited JSON records, one goroutine per connection.
package tcp

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"

	"flashquiz-server/internal/app"
	"flashquiz-server/internal/protocol"
)

type Server struct {
	engine *app.Engine
}

func NewServer(engine *app.Engine) *Server {
	return &Server{engine: engine}
}

// Serve accepts connections until the listener is closed. Each connection
// gets its own goroutine; messages within a connection are processed strictly
// in arrival order.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	sender := &connSender{conn: conn, enc: protocol.NewEncoder(conn)}
	id := s.engine.Connect(sender)
	defer s.engine.Disconnect(id)

	ctx := context.Background()
	dec := protocol.NewDecoder(conn)
	for {
		msg, err := dec.Decode()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				// Connection stays open; only the offending record is dropped.
				_ = sender.Send(protocol.NewError("Invalid JSON format"))
				continue
			}
			if !errors.Is(err, io.EOF) {
				log.Printf("read from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		s.engine.HandleMessage(ctx, id, msg)
	}
}

// connSender serializes writes to one connection; the session goroutine and
// the leaderboard broadcaster share it.
type connSender struct {
	conn net.Conn
	enc  *protocol.Encoder

	closeOnce sync.Once
	closeErr  error
}

func (c *connSender) Send(v any) error {
	return c.enc.Encode(v)
}

func (c *connSender) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
