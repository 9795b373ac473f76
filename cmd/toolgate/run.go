// cmd/toolgate/run.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode"

	"github.com/cockroachdb/errors"

	"github.com/toolgate/toolgate/internal/downstream"
	"github.com/toolgate/toolgate/internal/gate"
	"github.com/toolgate/toolgate/internal/guardrail"
	"github.com/toolgate/toolgate/internal/logging"
	"github.com/toolgate/toolgate/internal/proxy"
	"github.com/toolgate/toolgate/internal/quarantine"
	"github.com/toolgate/toolgate/internal/sanitize"
	"github.com/toolgate/toolgate/internal/transport"
	"github.com/toolgate/toolgate/internal/truststore"
)

// runCommand starts the proxy: client on this process's stdio, downstream
// spawned or dialed per configuration.
func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	downstreamID := fs.String("downstream", "", "downstream command line or URL (overrides config)")
	kind := fs.String("kind", "", "downstream kind: stdio, sse, or http (overrides config)")
	visualize := fs.Bool("visualize", false, "rewrite terminal escape introducers in outbound text")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse run command flags: %w", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if *downstreamID != "" {
		cfg.Downstream.Identifier = *downstreamID
	}
	if *kind != "" {
		cfg.Downstream.Kind = *kind
	}
	if *visualize {
		cfg.Proxy.Visualize = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Downstream.Kind != truststore.KindStdio {
		return fmt.Errorf("downstream kind %q is not supported by this build; only stdio is", cfg.Downstream.Kind)
	}

	// The slog logger writes to stderr; stdout is the protocol channel.
	logger := logging.NewSlogLogger(*debug)
	logging.SetDefaultLogger(logger)

	trust, err := truststore.New(cfg.Storage.TrustPath, logger.WithField("component", "trust_store"))
	if err != nil {
		return fmt.Errorf("error opening trust store: %w", err)
	}
	store, err := quarantine.New(cfg.Storage.QuarantinePath, logger.WithField("component", "quarantine_store"))
	if err != nil {
		return fmt.Errorf("error opening quarantine store: %w", err)
	}

	var guard guardrail.Provider
	if cfg.Guardrail.Enabled {
		provider, err := guardrail.NewPatternProvider(cfg.Guardrail.Patterns, logger)
		if err != nil {
			return fmt.Errorf("error building guardrail provider: %w", err)
		}
		guard = provider
	}
	sanitizer := sanitize.New(cfg.Proxy.Visualize)

	// SIGINT/SIGTERM cancel the context; the deferred session Close below
	// guarantees the child is reaped on every exit path.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	argv, err := splitCommandLine(cfg.Downstream.Identifier)
	if err != nil {
		return fmt.Errorf("invalid downstream command: %w", err)
	}
	session, err := downstream.NewStdioSession(ctx, downstream.StdioOptions{
		Command:       argv,
		ShutdownGrace: cfg.Downstream.ShutdownGrace,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("error starting downstream server: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.Warn("Error closing downstream session.", "error", closeErr)
		}
	}()

	g, err := gate.New(ctx, gate.Options{
		Kind:          cfg.Downstream.Kind,
		Identifier:    cfg.Downstream.Identifier,
		Session:       session,
		Trust:         trust,
		Quarantine:    store,
		Guard:         guard,
		GuardFailOpen: cfg.Guardrail.FailOpen,
		Sanitizer:     sanitizer,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("error establishing approval gate: %w", err)
	}

	client := transport.NewNDJSONTransport(os.Stdin, os.Stdout, nil, logger)
	p := proxy.New(proxy.Options{
		Client:         client,
		Session:        session,
		Gate:           g,
		Sanitizer:      sanitizer,
		Logger:         logger,
		RequestTimeout: cfg.Proxy.RequestTimeout,
		ServerName:     "toolgate",
		ServerVersion:  version,
	})

	runErr := p.Run(ctx)
	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, io.EOF), errors.Is(runErr, context.Canceled), transport.IsClosedError(runErr):
		logger.Info("Proxy session ended.", "reason", runErr)
		return nil
	default:
		return fmt.Errorf("proxy session failed: %w", runErr)
	}
}

// splitCommandLine splits a downstream command line into argv. Single and
// double quotes group words, backslash escapes the next character; inside
// single quotes everything is literal. The identifier string doubles as the
// trust store key, so quoting must not be lossy.
func splitCommandLine(line string) ([]string, error) {
	var args []string
	var current strings.Builder
	inWord := false
	var quote rune

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case quote == '\'':
			if c == '\'' {
				quote = 0
			} else {
				current.WriteRune(c)
			}
		case quote == '"':
			switch {
			case c == '"':
				quote = 0
			case c == '\\' && i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\\'):
				i++
				current.WriteRune(runes[i])
			default:
				current.WriteRune(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inWord = true
		case c == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
			inWord = true
		case unicode.IsSpace(c):
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(c)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unbalanced %q quote in downstream command", quote)
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
