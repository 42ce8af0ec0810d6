package gating

import (
	"errors"
	"testing"
)

func TestParseRespond(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    bool
		wantErr bool
	}{
		{"true", `{"Respond": true}`, true, false},
		{"false", `{"Respond":false}`, false, false},
		{"fenced", "```json\n{\"Respond\": true}\n```", true, false},
		{"bare fence", "```{\"Respond\": true}```", true, false},
		{"empty", "", false, true},
		{"silence", "   ", false, true},
		{"prose", "Yes, I should respond.", false, true},
		{"missing field", `{}`, false, true},
		{"unknown field", `{"Respond": true, "Reason": "mention"}`, false, true},
		{"wrong type", `{"Respond": "yes"}`, false, true},
		{"truncated", `{"Respond": tr`, false, true},
		{"trailing object", `{"Respond": true} {"Respond": false}`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRespond(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRespond(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRespond(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if err != nil {
				var pe *ParseError
				if !errors.As(err, &pe) || pe.Decision != "respond" {
					t.Errorf("expected *ParseError for respond, got %T", err)
				}
			}
		})
	}
}

func TestParseTools(t *testing.T) {
	if got, err := ParseTools(`{"Tools": true}`); err != nil || !got {
		t.Fatalf("ParseTools = %v, %v", got, err)
	}
	if got, err := ParseTools(`{"Respond": true}`); err == nil || got {
		t.Fatalf("respond object must not satisfy the tools gate: %v, %v", got, err)
	}
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus(`{"DiscordStatus": "  Chasing my own tail again  "}`)
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if got != "Chasing my own tail again" {
		t.Errorf("got %q", got)
	}

	got, err = ParseStatus(`{"Status": "nope"}`)
	if err == nil || got != "" {
		t.Errorf("expected parse error and empty status, got %q, %v", got, err)
	}
}

func TestSchemas(t *testing.T) {
	props := RespondSchema["properties"].(map[string]any)
	if props["Respond"].(map[string]any)["type"] != "boolean" {
		t.Errorf("respond schema = %v", RespondSchema)
	}
	if req := StatusSchema["required"].([]string); len(req) != 1 || req[0] != "DiscordStatus" {
		t.Errorf("status schema required = %v", req)
	}
}
