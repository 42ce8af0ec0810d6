package gating

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ParseError reports model output that does not match a decision schema.
// Callers recover it to the decision's safe default.
type ParseError struct {
	Decision string
	Raw      string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s decision from %q: %v", e.Decision, truncate(e.Raw, 80), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errMissingField = errors.New("required field missing")

// RespondDecision is the reply of the respond gate.
type RespondDecision struct {
	Respond *bool `json:"Respond"`
}

// ToolsDecision is the reply of the tools gate.
type ToolsDecision struct {
	Tools *bool `json:"Tools"`
}

// StatusDecision is the reply of the status generator.
type StatusDecision struct {
	DiscordStatus *string `json:"DiscordStatus"`
}

// Schemas sent with each gate request.
var (
	RespondSchema = objectSchema("Respond", "boolean")
	ToolsSchema   = objectSchema("Tools", "boolean")
	StatusSchema  = objectSchema("DiscordStatus", "string")
)

func objectSchema(field, typ string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			field: map[string]any{"type": typ},
		},
		"required":             []string{field},
		"additionalProperties": false,
	}
}

// ParseRespond decodes the respond gate output.
func ParseRespond(raw string) (bool, error) {
	var d RespondDecision
	if err := decodeStrict(raw, &d); err != nil {
		return false, &ParseError{Decision: "respond", Raw: raw, Err: err}
	}
	if d.Respond == nil {
		return false, &ParseError{Decision: "respond", Raw: raw, Err: fmt.Errorf("%w: Respond", errMissingField)}
	}
	return *d.Respond, nil
}

// ParseTools decodes the tools gate output.
func ParseTools(raw string) (bool, error) {
	var d ToolsDecision
	if err := decodeStrict(raw, &d); err != nil {
		return false, &ParseError{Decision: "tools", Raw: raw, Err: err}
	}
	if d.Tools == nil {
		return false, &ParseError{Decision: "tools", Raw: raw, Err: fmt.Errorf("%w: Tools", errMissingField)}
	}
	return *d.Tools, nil
}

// ParseStatus decodes the status generator output.
func ParseStatus(raw string) (string, error) {
	var d StatusDecision
	if err := decodeStrict(raw, &d); err != nil {
		return "", &ParseError{Decision: "status", Raw: raw, Err: err}
	}
	if d.DiscordStatus == nil {
		return "", &ParseError{Decision: "status", Raw: raw, Err: fmt.Errorf("%w: DiscordStatus", errMissingField)}
	}
	return strings.TrimSpace(*d.DiscordStatus), nil
}

// decodeStrict decodes exactly one JSON object with no unknown fields.
// A surrounding markdown code fence is stripped first.
func decodeStrict(raw string, v any) error {
	body := stripFence(raw)
	if body == "" {
		return errors.New("empty output")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after object")
	}
	return nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string, e.g. ```json
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
