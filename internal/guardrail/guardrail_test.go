// Package guardrail defines the output-screening boundary contract.
package guardrail

// file: internal/guardrail/guardrail_test.go

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternProvider_FlagsMatchingOutput(t *testing.T) {
	provider, err := NewPatternProvider([]string{`(?i)api[_-]?key`, `BEGIN RSA PRIVATE KEY`}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	verdict, err := provider.Check(ctx, "read_file", nil, "here is the API-KEY: abc123")
	require.NoError(t, err)
	assert.True(t, verdict.Flagged)
	assert.NotEmpty(t, verdict.Reason, "The reviewer needs to know which pattern fired.")

	verdict, err = provider.Check(ctx, "read_file", nil, "nothing sensitive here")
	require.NoError(t, err)
	assert.False(t, verdict.Flagged)
	assert.Empty(t, verdict.Reason)
}

func TestPatternProvider_EmptyListFlagsNothing(t *testing.T) {
	provider, err := NewPatternProvider(nil, nil)
	require.NoError(t, err)

	verdict, err := provider.Check(context.Background(), "t", nil, "anything at all")
	require.NoError(t, err)
	assert.False(t, verdict.Flagged)
}

func TestNewPatternProvider_RejectsBadExpressions(t *testing.T) {
	_, err := NewPatternProvider([]string{`valid`, `([unclosed`}, nil)
	require.Error(t, err, "A broken deny-list must fail at construction, not at check time.")
}

func TestPatternProvider_CancelledContextIsAProviderFailure(t *testing.T) {
	provider, err := NewPatternProvider([]string{`x`}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = provider.Check(ctx, "t", nil, "x marks the spot")
	require.Error(t, err, "Cancellation surfaces as a classifier failure for the gate's policy.")
}
