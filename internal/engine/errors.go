// Package engine provides the tool plumbing shared by the cache transports.
// This file contains tool error types.

package engine

import (
	"fmt"
	"strings"
)

// ToolValidationError indicates that tool arguments failed JSON schema validation.
type ToolValidationError struct {
	ToolName string
	Errors   []string
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("tool %s validation failed: %s", e.ToolName, strings.Join(e.Errors, "; "))
}

// UnknownToolError is returned when a call names a tool that isn't registered.
type UnknownToolError struct {
	ToolName string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.ToolName)
}
