package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConversationalDropsSystem(t *testing.T) {
	in := []Message{
		SystemMessage("preamble"),
		UserMessage("alice: hi"),
		AssistantMessage("hello"),
		SystemMessage("late system"),
		{Role: RoleTool, ToolResult: &ToolResult{Name: "x"}},
	}

	got := Conversational(in)
	want := []Message{UserMessage("alice: hi"), AssistantMessage("hello")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Conversational() mismatch (-want +got):\n%s", diff)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	orig := Message{
		Role:        RoleUser,
		Attachments: []Attachment{{MimeType: "image/png", Data: []byte{1}}},
		ToolResult:  &ToolResult{Output: "a"},
	}
	c := orig.Clone()
	c.Attachments[0].MimeType = "text/plain"
	c.ToolResult.Output = "b"

	if orig.Attachments[0].MimeType != "image/png" {
		t.Error("attachment slice aliased")
	}
	if orig.ToolResult.Output != "a" {
		t.Error("tool result aliased")
	}
}

func TestAttachmentIsImage(t *testing.T) {
	if !(Attachment{MimeType: "image/jpeg"}).IsImage() {
		t.Error("expected jpeg to be an image")
	}
	if (Attachment{MimeType: "application/pdf"}).IsImage() {
		t.Error("pdf is not an image")
	}
	if (Attachment{MimeType: "image/"}).IsImage() {
		t.Error("bare prefix is not an image")
	}
}
