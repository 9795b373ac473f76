// Package sanitize rewrites dangerous terminal escape sequences in text
// crossing the trust boundary. A compromised downstream must not be able to
// manipulate the client's terminal rendering through tool descriptions or call
// results.
package sanitize

// file: internal/sanitize/sanitize.go

import (
	"strings"
)

// escIntroducer is the raw terminal escape byte.
const escIntroducer = "\x1b"

// Marker is the inert literal every escape introducer is rewritten to when
// visualization is enabled.
const Marker = `\e`

// Sanitizer rewrites escape introducers when enabled and is the identity
// otherwise. The zero value is a disabled sanitizer.
type Sanitizer struct {
	enabled bool
}

// New creates a sanitizer. Visualization is opt-in per session.
func New(enabled bool) *Sanitizer {
	return &Sanitizer{enabled: enabled}
}

// Enabled reports whether rewriting is active.
func (s *Sanitizer) Enabled() bool {
	return s.enabled
}

// Clean rewrites every escape introducer in the text to the inert marker.
// With visualization disabled the text passes through unchanged.
func (s *Sanitizer) Clean(text string) string {
	if !s.enabled {
		return text
	}
	return strings.ReplaceAll(text, escIntroducer, Marker)
}
