// Package types holds the message and tool descriptors shared by the
// conversation store, the inference transports and the capability registry.
package types

import "slices"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleTool carries a capability result back to the model inside a
	// single dispatch. It is never stored in a conversation.
	RoleTool Role = "tool"
)

// Attachment is binary content attached to a message, typically an image.
type Attachment struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// IsImage reports whether the attachment carries an image.
func (a Attachment) IsImage() bool {
	return len(a.MimeType) > 6 && a.MimeType[:6] == "image/"
}

// Message is one entry in a conversation.
type Message struct {
	Role        Role         `json:"role"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// ToolCalls is set on assistant turns that requested capabilities.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolResult is set on RoleTool messages.
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Text: text} }

// UserMessage builds a user message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Text: text} }

// AssistantMessage builds an assistant message.
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Text: text} }

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	out := m
	out.Attachments = slices.Clone(m.Attachments)
	out.ToolCalls = slices.Clone(m.ToolCalls)
	if m.ToolResult != nil {
		tr := *m.ToolResult
		out.ToolResult = &tr
	}
	return out
}

// Conversational returns only the user and assistant messages of msgs.
func Conversational(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			out = append(out, m.Clone())
		}
	}
	return out
}

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// ToolResult is the output of an executed ToolCall.
type ToolResult struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output string `json:"output"`
	IsErr  bool   `json:"is_error,omitempty"`
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
