// Command duplexd runs a duplex echo/broadcast server or sends messages to one.
//
//	duplexd serve [--listen addr] [--broadcast]
//	duplexd send [--addr host:port] [message...]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := Execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "duplexd: %v\n", err)
		os.Exit(1)
	}
}
