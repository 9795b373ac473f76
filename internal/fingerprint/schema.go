// Package fingerprint implements the canonical server capability model.
// This file holds the JSON schema for the serialized ServerConfig document and
// the validator compiled from it.
package fingerprint

// file: internal/fingerprint/schema.go

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema constrains the serialized ServerConfig document. Candidate
// configs supplied for approval and records loaded from the trust store file
// both pass through it before structural checks.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["instructions", "tools"],
  "properties": {
    "instructions": {"type": "string"},
    "tools": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "description", "parameters"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "parameters": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "description", "type", "required"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "description": {"type": "string"},
                "type": {
                  "type": "string",
                  "enum": ["string", "number", "integer", "boolean", "object", "array", "null"]
                },
                "required": {"type": "boolean"},
                "enum": {"type": "array", "items": {"type": "string"}}
              },
              "additionalProperties": false
            }
          }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var (
	compiledSchema     *jsonschema.Schema
	compiledSchemaErr  error
	compileSchemaOnce  sync.Once
	configSchemaNameID = "toolgate://schemas/server-config.json"
)

// compiledConfigSchema compiles the embedded schema once.
func compiledConfigSchema() (*jsonschema.Schema, error) {
	compileSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(configSchemaNameID, strings.NewReader(configSchema)); err != nil {
			compiledSchemaErr = errors.Wrap(err, "failed to add server config schema resource")
			return
		}
		schema, err := compiler.Compile(configSchemaNameID)
		if err != nil {
			compiledSchemaErr = errors.Wrap(err, "failed to compile server config schema")
			return
		}
		compiledSchema = schema
	})
	return compiledSchema, compiledSchemaErr
}

// validateDocument checks raw bytes against the ServerConfig document schema.
func validateDocument(data []byte) error {
	schema, err := compiledConfigSchema()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var instance interface{}
	if err := dec.Decode(&instance); err != nil {
		return errors.Wrap(err, "server config document is not valid JSON")
	}
	if err := schema.Validate(instance); err != nil {
		return errors.Wrap(err, "server config document violates schema")
	}
	return nil
}
