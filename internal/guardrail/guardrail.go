// Package guardrail defines the boundary contract for the pluggable content
// classifier that screens tool output, plus a small pattern-list provider used
// as the built-in default. Classifier internals are deliberately out of the
// proxy core's concern; the gate consumes only the verdict.
package guardrail

// file: internal/guardrail/guardrail.go

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/cockroachdb/errors"

	"github.com/toolgate/toolgate/internal/logging"
)

// Verdict is the classifier's judgment on one tool response.
type Verdict struct {
	// Flagged marks the response as unsafe to forward.
	Flagged bool
	// Reason explains the flag in human-readable terms for the reviewer.
	Reason string
}

// Provider classifies tool responses. An error return means the classifier
// itself failed (crash, timeout); the gate's failure policy decides what
// happens then.
type Provider interface {
	// Check screens one tool response. The input is the arguments the tool was
	// called with, the output is the raw response text.
	Check(ctx context.Context, toolName string, input json.RawMessage, output string) (Verdict, error)
}

// PatternProvider flags responses matching any of a fixed list of regular
// expressions. It is the reference provider: enough to exercise the quarantine
// path and serve as a deny-list for known-bad markers.
type PatternProvider struct {
	patterns []*regexp.Regexp
	logger   logging.Logger
}

// NewPatternProvider compiles the given expressions into a provider.
func NewPatternProvider(expressions []string, logger logging.Logger) (*PatternProvider, error) {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	patterns := make([]*regexp.Regexp, 0, len(expressions))
	for _, expr := range expressions {
		compiled, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to compile guardrail pattern %q", expr)
		}
		patterns = append(patterns, compiled)
	}
	return &PatternProvider{
		patterns: patterns,
		logger:   logger.WithField("component", "pattern_guardrail"),
	}, nil
}

// Check implements Provider. The first matching pattern flags the response.
func (p *PatternProvider) Check(ctx context.Context, toolName string, _ json.RawMessage, output string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, errors.Wrap(err, "guardrail check cancelled")
	}
	for _, pattern := range p.patterns {
		if pattern.MatchString(output) {
			p.logger.Debug("Guardrail pattern matched tool output.", "tool", toolName, "pattern", pattern.String())
			return Verdict{
				Flagged: true,
				Reason:  fmt.Sprintf("output matched guardrail pattern %q", pattern.String()),
			}, nil
		}
	}
	return Verdict{}, nil
}

// Compile-time check that PatternProvider implements Provider.
var _ Provider = (*PatternProvider)(nil)
