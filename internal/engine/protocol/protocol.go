package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/glommer/cachebro/internal/engine"
)

// CommandType enumerates all supported client -> server commands.
type CommandType string

const (
	CommandListTools CommandType = "list_tools"
	CommandCallTool  CommandType = "call_tool"
	CommandGetStats  CommandType = "get_stats"
)

// Command is a marker interface implemented by all protocol commands.
type Command interface {
	GetType() CommandType
}

// ListToolsCommand asks for the tool catalogue.
type ListToolsCommand struct {
	Type CommandType `json:"type"`
}

// GetType implements Command.
func (c ListToolsCommand) GetType() CommandType { return CommandListTools }

// CallToolCommand runs one tool. SessionID selects whose "last seen" state
// the call reads and updates; empty means the server's default session.
type CallToolCommand struct {
	Type      CommandType    `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
}

// GetType implements Command.
func (c CallToolCommand) GetType() CommandType { return CommandCallTool }

// GetStatsCommand asks for savings counters.
type GetStatsCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
}

// GetType implements Command.
func (c GetStatsCommand) GetType() CommandType { return CommandGetStats }

type rawCommand struct {
	Type CommandType `json:"type"`
}

// DecodeCommand converts raw JSON into a strongly typed command.
func DecodeCommand(data []byte) (Command, error) {
	var base rawCommand
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch base.Type {
	case CommandListTools:
		return ListToolsCommand{Type: CommandListTools}, nil
	case CommandCallTool:
		var cmd CallToolCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode call_tool: %w", err)
		}
		if cmd.Tool == "" {
			return nil, errors.New("call_tool requires tool")
		}
		if cmd.RequestID == "" {
			cmd.RequestID = NewRequestID()
		}
		if cmd.Args == nil {
			cmd.Args = map[string]any{}
		}
		return cmd, nil
	case CommandGetStats:
		var cmd GetStatsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode get_stats: %w", err)
		}
		return cmd, nil
	case "":
		return nil, errors.New("command requires type")
	default:
		return nil, fmt.Errorf("unknown command type: %s", base.Type)
	}
}

// NewSessionID generates a new opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NewRequestID generates an identifier for a call that arrived without one.
func NewRequestID() string {
	return uuid.NewString()
}

// EventType enumerates server -> client events.
type EventType string

const (
	EventStatus     EventType = "status"
	EventTools      EventType = "tools"
	EventToolResult EventType = "tool_result"
	EventStats      EventType = "stats"
	EventError      EventType = "error"
)

// Event is implemented by every outgoing message.
type Event interface {
	isEvent()
	GetType() EventType
}

// MarshalEvent serializes an event into JSON for NDJSON transport.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

type eventBase struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
}

func (eventBase) isEvent() {}

// StatusEvent communicates coarse server state.
type StatusEvent struct {
	eventBase
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// NewStatusEvent constructs a status event.
func NewStatusEvent(sessionID, status, detail string) StatusEvent {
	return StatusEvent{
		eventBase: eventBase{Type: EventStatus, SessionID: sessionID},
		Status:    status,
		Detail:    detail,
	}
}

// GetType implements Event.
func (e StatusEvent) GetType() EventType { return e.Type }

// ToolsEvent lists the available tools.
type ToolsEvent struct {
	eventBase
	Tools []engine.ToolSchema `json:"tools"`
}

// NewToolsEvent constructs a tools event.
func NewToolsEvent(tools []engine.ToolSchema) ToolsEvent {
	return ToolsEvent{
		eventBase: eventBase{Type: EventTools},
		Tools:     tools,
	}
}

// GetType implements Event.
func (e ToolsEvent) GetType() EventType { return e.Type }

// ToolResultEvent carries the output of one call_tool.
type ToolResultEvent struct {
	eventBase
	RequestID string          `json:"request_id"`
	Tool      string          `json:"tool"`
	Output    json.RawMessage `json:"output"`
}

// NewToolResultEvent constructs a tool_result event. Output that is not
// valid JSON is sent as a JSON string.
func NewToolResultEvent(sessionID, requestID, tool, output string) ToolResultEvent {
	raw := json.RawMessage(output)
	if !json.Valid(raw) {
		raw, _ = json.Marshal(output)
	}
	return ToolResultEvent{
		eventBase: eventBase{Type: EventToolResult, SessionID: sessionID},
		RequestID: requestID,
		Tool:      tool,
		Output:    raw,
	}
}

// GetType implements Event.
func (e ToolResultEvent) GetType() EventType { return e.Type }

// StatsEvent reports savings counters.
type StatsEvent struct {
	eventBase
	FilesTracked       int   `json:"files_tracked"`
	TokensSaved        int64 `json:"tokens_saved"`
	SessionTokensSaved int64 `json:"session_tokens_saved"`
}

// NewStatsEvent constructs a stats event.
func NewStatsEvent(sessionID string, filesTracked int, tokensSaved, sessionTokensSaved int64) StatsEvent {
	return StatsEvent{
		eventBase:          eventBase{Type: EventStats, SessionID: sessionID},
		FilesTracked:       filesTracked,
		TokensSaved:        tokensSaved,
		SessionTokensSaved: sessionTokensSaved,
	}
}

// GetType implements Event.
func (e StatsEvent) GetType() EventType { return e.Type }

// ErrorEvent reports recoverable protocol or tool issues.
type ErrorEvent struct {
	eventBase
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	Details   string `json:"details,omitempty"`
}

// NewErrorEvent constructs an error event.
func NewErrorEvent(sessionID, requestID, message, kind, details string) ErrorEvent {
	return ErrorEvent{
		eventBase: eventBase{Type: EventError, SessionID: sessionID},
		RequestID: requestID,
		Message:   message,
		Kind:      kind,
		Details:   details,
	}
}

// GetType implements Event.
func (e ErrorEvent) GetType() EventType { return e.Type }
