// Package main is the CLI entry point (spec §6 "CLI (external
// collaborator, contract only)"). It wires tiny.conf, the database
// pool, the translation bundle, the template set and the route
// resolver into a running Server, and exposes the start/stop/status/go
// /help verbs over a cobra command tree. Grounded on
// original_source/src/sys/init.rs's two-phase startup (load config,
// open resources, bind control listener before the request listener,
// enter the accept loop) and the teacher's cmd/main.go Main/cobra
// wiring, adapted from Caddy's JSON-config-reload model to this
// system's single static tiny.conf.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes (spec §6 "Exit code is zero on success; non-zero on
// connection/IO failure to the control channel").
const (
	ExitSuccess       = 0
	ExitFailedStartup = 1
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(ExitFailedStartup)
	}
}

// exitError carries a specific process exit code out through cobra's
// plain error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}
