package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// ToolMetadata provides versioning and categorization for tools.
type ToolMetadata struct {
	Version  string   // e.g., "1.0.0"
	Category string   // e.g., "cache", "filesystem"
	Tags     []string // e.g., ["read-only", "idempotent"]
}

type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Fn          ToolFunc
	Metadata    ToolMetadata
}

// ToolSchema is the wire description of a tool.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	JSONSchema  json.RawMessage `json:"input_schema"`
}

// ValidateArgs validates the provided arguments against the tool's JSON schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	schemaLoader := gojsonschema.NewStringLoader(t.SchemaJSON)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errorMsgs []string
		for _, err := range result.Errors() {
			errorMsgs = append(errorMsgs, err.String())
		}
		return &ToolValidationError{
			ToolName: t.Name,
			Errors:   errorMsgs,
		}
	}

	return nil
}

// Call validates args and runs the tool.
func (t Tool) Call(ctx context.Context, args map[string]any) (string, error) {
	if err := t.ValidateArgs(args); err != nil {
		return "", err
	}
	return t.Fn(ctx, args)
}

// GetVersion returns the tool version, defaulting to "0.0.0" if unset.
func (t Tool) GetVersion() string {
	if t.Metadata.Version == "" {
		return "0.0.0"
	}
	return t.Metadata.Version
}

type ToolRegistry map[string]Tool

// Schemas returns tool descriptions sorted by name.
func (r ToolRegistry) Schemas() []ToolSchema {
	s := make([]ToolSchema, 0, len(r))
	for _, t := range r {
		s = append(s, ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			JSONSchema:  json.RawMessage(t.SchemaJSON),
		})
	}
	sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
	return s
}

// Call looks up name and runs it with args.
func (r ToolRegistry) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r[name]
	if !ok {
		return "", &UnknownToolError{ToolName: name}
	}
	return t.Call(ctx, args)
}
