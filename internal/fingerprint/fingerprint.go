// Package fingerprint implements the canonical, comparable representation of a
// downstream server's declared capability surface, and the structural diff
// between two such representations. The byte-exact canonical form is the
// approval-match primitive; the diff is the drift-detection primitive.
package fingerprint

// file: internal/fingerprint/fingerprint.go

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/toolgate/toolgate/internal/gateerrors"
)

// ParameterType enumerates the JSON-schema types a tool parameter may declare.
type ParameterType string

// The fixed set of parameter types. Anything else a downstream declares is
// coerced to TypeObject during Build and rejected during Parse.
const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeInteger ParameterType = "integer"
	TypeBoolean ParameterType = "boolean"
	TypeObject  ParameterType = "object"
	TypeArray   ParameterType = "array"
	TypeNull    ParameterType = "null"
)

// knownTypes is the membership set for Parse-time validation.
var knownTypes = map[ParameterType]struct{}{
	TypeString: {}, TypeNumber: {}, TypeInteger: {}, TypeBoolean: {},
	TypeObject: {}, TypeArray: {}, TypeNull: {},
}

// ParameterDefinition describes a single declared tool parameter.
type ParameterDefinition struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Type        ParameterType `json:"type"`
	Required    bool          `json:"required"`
	Enum        []string      `json:"enum,omitempty"`
}

// ToolDefinition describes a single declared tool. Parameter order is
// significant for comparison; it follows the downstream's schema declaration.
type ToolDefinition struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Parameters  []ParameterDefinition `json:"parameters"`
}

// ServerConfig is the fingerprint: the complete declared capability surface of
// a downstream server. Tools are kept sorted by name so serialization is
// canonical; tool names are unique.
type ServerConfig struct {
	Instructions string           `json:"instructions"`
	Tools        []ToolDefinition `json:"tools"`
}

// DeclaredTool is the raw tool shape as listed by a downstream server before
// it is mapped into the canonical model.
type DeclaredTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Build maps a downstream's declared tool list and instructions into a
// canonical ServerConfig. Required flags and enum literal constraints are
// preserved; parameter order follows the schema's property declaration order.
func Build(tools []DeclaredTool, instructions string) (*ServerConfig, error) {
	cfg := &ServerConfig{
		Instructions: instructions,
		Tools:        make([]ToolDefinition, 0, len(tools)),
	}
	seen := make(map[string]struct{}, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			return nil, gateerrors.NewValidationError("declared tool has empty name", nil, nil)
		}
		if _, dup := seen[tool.Name]; dup {
			return nil, gateerrors.NewValidationError(
				"duplicate tool name in declared tool list", nil,
				map[string]interface{}{"tool": tool.Name},
			)
		}
		seen[tool.Name] = struct{}{}

		params, err := parametersFromSchema(tool.InputSchema)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to map input schema for tool %q", tool.Name)
		}
		cfg.Tools = append(cfg.Tools, ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	cfg.normalize()
	return cfg, nil
}

// normalize sorts the tool set by name. The tool set is order-irrelevant for
// comparison, so a single canonical order keeps serialization deterministic.
func (c *ServerConfig) normalize() {
	sort.Slice(c.Tools, func(i, j int) bool {
		return c.Tools[i].Name < c.Tools[j].Name
	})
}

// Canonical returns the deterministic serialized form of the fingerprint.
// Two fingerprints are approval-equal iff their canonical bytes are equal.
func (c *ServerConfig) Canonical() ([]byte, error) {
	normalized := *c
	normalized.Tools = append([]ToolDefinition(nil), c.Tools...)
	normalized.normalize()
	data, err := json.Marshal(&normalized)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize server config")
	}
	return data, nil
}

// Tool returns the tool definition with the given name, or nil.
func (c *ServerConfig) Tool(name string) *ToolDefinition {
	for i := range c.Tools {
		if c.Tools[i].Name == name {
			return &c.Tools[i]
		}
	}
	return nil
}

// Parse decodes and validates a serialized ServerConfig document.
// It enforces the document schema, unique tool names, and the fixed parameter
// type enumeration, returning a ValidationError on any violation.
func Parse(data []byte) (*ServerConfig, error) {
	if err := validateDocument(data); err != nil {
		return nil, gateerrors.NewValidationError("server config document failed schema validation", err, nil)
	}

	var cfg ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, gateerrors.NewValidationError("failed to decode server config document", err, nil)
	}

	seen := make(map[string]struct{}, len(cfg.Tools))
	for _, tool := range cfg.Tools {
		if tool.Name == "" {
			return nil, gateerrors.NewValidationError("server config contains tool with empty name", nil, nil)
		}
		if _, dup := seen[tool.Name]; dup {
			return nil, gateerrors.NewValidationError(
				"server config contains duplicate tool name", nil,
				map[string]interface{}{"tool": tool.Name},
			)
		}
		seen[tool.Name] = struct{}{}
		for _, param := range tool.Parameters {
			if _, ok := knownTypes[param.Type]; !ok {
				return nil, gateerrors.NewValidationError(
					"server config contains unknown parameter type", nil,
					map[string]interface{}{"tool": tool.Name, "parameter": param.Name, "type": string(param.Type)},
				)
			}
		}
	}
	cfg.normalize()
	return &cfg, nil
}

// inputSchema is the subset of a JSON-schema tool input document the
// fingerprint cares about.
type inputSchema struct {
	Properties json.RawMessage `json:"properties"`
	Required   []string        `json:"required"`
}

// schemaProperty is a single property entry inside an input schema.
type schemaProperty struct {
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Enum        []interface{} `json:"enum"`
}

// parametersFromSchema maps a tool's JSON-schema input document into an
// ordered parameter list. Property order follows the schema document;
// membership in the schema's "required" array sets the Required flag.
func parametersFromSchema(raw json.RawMessage) ([]ParameterDefinition, error) {
	if len(raw) == 0 {
		return []ParameterDefinition{}, nil
	}

	var schema inputSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, errors.Wrap(err, "failed to decode tool input schema")
	}
	required := make(map[string]struct{}, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = struct{}{}
	}

	names, bodies, err := orderedProperties(schema.Properties)
	if err != nil {
		return nil, err
	}

	params := make([]ParameterDefinition, 0, len(names))
	for i, name := range names {
		var prop schemaProperty
		if err := json.Unmarshal(bodies[i], &prop); err != nil {
			return nil, errors.Wrapf(err, "failed to decode schema property %q", name)
		}
		_, isRequired := required[name]
		params = append(params, ParameterDefinition{
			Name:        name,
			Description: prop.Description,
			Type:        coerceType(prop.Type),
			Required:    isRequired,
			Enum:        enumLiterals(prop.Enum),
		})
	}
	return params, nil
}

// orderedProperties walks a JSON object token-by-token to recover property
// declaration order, which encoding/json map decoding discards.
func orderedProperties(raw json.RawMessage) (names []string, bodies []json.RawMessage, err error) {
	if len(raw) == 0 {
		return nil, nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read schema properties")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, errors.New("schema properties is not a JSON object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to read schema property name")
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, errors.New("schema property name is not a string")
		}
		var body json.RawMessage
		if err := dec.Decode(&body); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to read schema property %q", key)
		}
		names = append(names, key)
		bodies = append(bodies, body)
	}
	return names, bodies, nil
}

// coerceType maps a declared schema type onto the fixed enumeration.
// Unknown or compound types are coerced to object rather than rejected,
// because the downstream's declaration is untrusted input.
func coerceType(declared string) ParameterType {
	t := ParameterType(declared)
	if _, ok := knownTypes[t]; ok {
		return t
	}
	return TypeObject
}

// enumLiterals renders an enum constraint's values as strings, preserving
// declaration order.
func enumLiterals(values []interface{}) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out = append(out, string(data))
	}
	return out
}
