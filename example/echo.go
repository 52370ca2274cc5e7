package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zereker/duplex"
)

// echo sends every message back to the connection it came from.
type echo struct{}

func (echo) OnMessage(conn *duplex.Conn, m duplex.Message) error {
	return conn.Send(m.Body())
}

func (echo) OnDisconnect(conn *duplex.Conn) {
	slog.Info("client left", "conn", conn.ID())
}

func main() {
	server, err := duplex.Listen("127.0.0.1:12345",
		duplex.ServerConnOption(duplex.ListenerOption(&echo{})),
	)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	server.OnClientConnected(func(c *duplex.Conn) {
		slog.Info("client joined", "conn", c.ID(), "addr", c.RemoteAddr())
	})

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
			slog.Error("server error", "error", err)
		}
	}()

	// Talk to ourselves once so the example shows both roles.
	client, err := duplex.Dial(ctx, "127.0.0.1", server.Port(),
		duplex.OnMessageOption(func(_ *duplex.Conn, m duplex.Message) error {
			slog.Info("echo received", "body", m.String())
			return nil
		}),
	)
	if err != nil {
		slog.Error("dial failed", "error", err)
		return
	}
	if err := client.Send([]byte("hello")); err != nil {
		slog.Error("send failed", "error", err)
	}
	time.Sleep(100 * time.Millisecond)
	_ = client.Detach()

	<-ctx.Done()
	slog.Info("shutting down server...")
}
