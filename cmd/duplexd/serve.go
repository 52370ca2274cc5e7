package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/Zereker/duplex"
)

// relay answers every message: back to its sender in echo mode, or to every
// other client in broadcast mode.
type relay struct {
	broadcast bool
	server    *duplex.Server
	logger    duplex.Logger
}

func (r *relay) OnMessage(conn *duplex.Conn, msg duplex.Message) error {
	if !r.broadcast {
		return conn.Send(msg.Body())
	}

	for _, c := range r.server.Clients() {
		if c == conn {
			continue
		}
		if err := c.Send(msg.Body()); err != nil {
			r.logger.Warn("broadcast failed", "conn", c.ID(), "error", err)
		}
	}
	return nil
}

func (r *relay) OnDisconnect(conn *duplex.Conn) {}

func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("duplexd serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.register(fs)

	var listen string
	var broadcast bool
	fs.StringVarP(&listen, "listen", "l", "", "Address to listen on (host:port)")
	fs.BoolVarP(&broadcast, "broadcast", "b", false, "Relay each message to every other client instead of echoing")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := common.apply(fs)
	if err != nil {
		return err
	}
	if fs.Changed("listen") {
		cfg.Listen = listen
	}
	if fs.Changed("broadcast") {
		cfg.Broadcast = broadcast
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	r := &relay{broadcast: cfg.Broadcast, logger: logger}
	opts := append(connOptions(cfg, logger), duplex.ListenerOption(r))

	server, err := duplex.Listen(cfg.Listen,
		duplex.ServerLoggerOption(logger),
		duplex.ServerConnOption(opts...),
	)
	if err != nil {
		return err
	}
	defer server.Close()
	r.server = server

	fmt.Fprintf(stdout, "listening on %s\n", server.Addr())

	err = server.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
