package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/Zereker/duplex"
)

func runSend(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("duplexd send", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.register(fs)

	var addr string
	var wait time.Duration
	var expect int
	fs.StringVarP(&addr, "addr", "a", "", "Server address (host:port)")
	fs.DurationVarP(&wait, "wait", "w", 0, "How long to wait for each reply")
	fs.IntVarP(&expect, "expect", "n", -1, "Replies to wait for (default: one per message)")

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
	if fs.Changed("addr") {
		cfg.Addr = addr
	}
	if fs.Changed("wait") {
		cfg.ReplyWait = wait
	}

	messages := fs.Args()
	if len(messages) == 0 {
		if messages, err = readLines(stdin); err != nil {
			return err
		}
	}
	if expect < 0 {
		expect = len(messages)
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	// The listener must never block the read loop, so replies beyond the
	// buffer are dropped.
	replies := make(chan duplex.Message, len(messages)+16)
	collector := &duplex.ListenerFuncs{Message: func(_ *duplex.Conn, m duplex.Message) error {
		select {
		case replies <- m:
			return nil
		default:
			return errors.New("reply buffer full")
		}
	}}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	opts := append(connOptions(cfg, logger), duplex.ListenerOption(collector))
	conn, err := duplex.DialAddr(dialCtx, cfg.Addr, opts...)
	if err != nil {
		return err
	}
	defer conn.Detach()

	for _, m := range messages {
		if err := conn.Send([]byte(m)); err != nil {
			return errors.Wrap(err, "send")
		}
	}

	return collect(ctx, conn, replies, expect, cfg.ReplyWait, stdout)
}

// collect prints replies until expect have arrived, none arrives within
// wait, or the connection ends.
func collect(ctx context.Context, conn *duplex.Conn, replies <-chan duplex.Message, expect int, wait time.Duration, w io.Writer) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for got := 0; got < expect; got++ {
		select {
		case m := <-replies:
			fmt.Fprintln(w, m.String())
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(wait)
		case <-timer.C:
			return errors.Errorf("timed out after %d of %d replies", got, expect)
		case <-conn.Done():
			// Replies may still be buffered behind the disconnect.
			select {
			case m := <-replies:
				fmt.Fprintln(w, m.String())
			default:
				return errors.Errorf("connection closed after %d of %d replies", got, expect)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, errors.Wrap(scanner.Err(), "read stdin")
}
