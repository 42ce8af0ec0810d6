// Package tools holds the capability registry and the dispatcher that lets
// the tool model pick and run exactly one capability for a conversation.
//
// Capabilities are registered explicitly at startup:
//
//	registry.MustRegister(tools.Define("search_web", "...", schema, fn))
//	registry.Seal()
package tools

import (
	"context"
)

// ToolCategory groups capabilities for listing and logging.
type ToolCategory string

const (
	// CategoryResearch covers web search, page reading and scripting.
	CategoryResearch ToolCategory = "/research"

	// CategoryPlatform covers actions on the chat platform itself.
	CategoryPlatform ToolCategory = "/platform"

	// CategoryBrowser covers headless browser captures.
	CategoryBrowser ToolCategory = "/browser"

	// CategoryGeneral is the default.
	CategoryGeneral ToolCategory = "/general"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// JSONSchema renders the schema as a JSON schema object for model providers.
func (s ToolSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Items != nil {
			prop["items"] = map[string]any{"type": p.Items.Type}
		}
		props[name] = prop
	}
	required := s.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is a named capability the tool model can invoke.
// A Tool must not be modified after registration.
type Tool struct {
	// Name is the unique identifier the model calls.
	Name string

	// Description tells the model when to use the tool.
	Description string

	// Category classifies the tool.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema
}

// Define builds a general-purpose tool.
func Define(name, description string, schema ToolSchema, fn ExecuteFunc) *Tool {
	return &Tool{
		Name:        name,
		Description: description,
		Category:    CategoryGeneral,
		Schema:      schema,
		Execute:     fn,
	}
}

// In returns a copy of the tool in category c.
func (t *Tool) In(c ToolCategory) *Tool {
	copy := *t
	copy.Category = c
	return &copy
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the string output from the tool.
	Result string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}
