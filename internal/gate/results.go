// Package gate implements the approval gate.
// This file defines the structured results the gate hands back to the client,
// and the synthetic tools exposed while a server is unapproved.
package gate

// file: internal/gate/results.go

import (
	"encoding/json"

	"github.com/toolgate/toolgate/internal/fingerprint"
)

// Result statuses crossing the boundary to the client.
const (
	StatusBlocked     = "blocked"
	StatusCompleted   = "completed"
	StatusQuarantined = "quarantined"
	StatusSuccess     = "success"
	StatusFailed      = "failed"
)

// BlockedReason is the fixed message returned for every tool invocation while
// the server is unapproved. It is identical for real and fabricated tool
// names so the response is never an existence oracle.
const BlockedReason = "This server's configuration has not been approved. " +
	"Review the configuration and approve it with the approve_server_config tool."

// MismatchReason is returned when an approval candidate does not byte-match
// the live configuration.
const MismatchReason = "Config did not match the server's current configuration. " +
	"Please review the latest configuration."

// Synthetic tool names exposed while unapproved.
const (
	ToolConfigInstructions = "config_instructions"
	ToolApproveConfig      = "approve_server_config"
)

// BlockedResult is returned for any tool invocation while not approved.
type BlockedResult struct {
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	ServerConfig string `json:"server_config"`
}

// CompletedResult wraps a forwarded downstream tool response.
type CompletedResult struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

// QuarantinedResult is the placeholder the client receives when the guardrail
// diverted the real response into the quarantine store.
type QuarantinedResult struct {
	Status       string `json:"status"`
	QuarantineID string `json:"quarantine_id"`
	Reason       string `json:"reason"`
}

// ApprovalResult reports the outcome of an approve_server_config call.
type ApprovalResult struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// approveParams is the expected argument shape for approve_server_config.
type approveParams struct {
	Config string `json:"config"`
}

// syntheticTools returns the fixed two-tool surface exposed while the server
// is unapproved. No downstream names, descriptions, or schemas appear here.
func syntheticTools() []fingerprint.DeclaredTool {
	return []fingerprint.DeclaredTool{
		{
			Name:        ToolConfigInstructions,
			Description: "Returns guidance for reviewing and approving this server's declared configuration.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        ToolApproveConfig,
			Description: "Approves the server configuration. Supply the exact serialized configuration returned by config_instructions.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"config":{"type":"string","description":"The serialized server configuration to approve."}},"required":["config"]}`),
		},
	}
}

// instructionsText renders the human review guidance, embedding the canonical
// candidate configuration.
func instructionsText(canonical string) string {
	return "This downstream server has not been approved for use.\n\n" +
		"Review the declared configuration below. If the instructions, tools, and " +
		"parameters look safe and match what you expect from this server, call " +
		"approve_server_config with the configuration string exactly as shown. " +
		"Any mismatch, including whitespace, is rejected.\n\n" +
		"Declared configuration:\n" + canonical + "\n"
}
