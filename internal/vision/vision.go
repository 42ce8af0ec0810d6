// Package vision turns image attachments into text the chat model can read.
package vision

import (
	"context"
	"fmt"
	"strings"

	"lynxbot/internal/inference"
	"lynxbot/internal/logging"
	"lynxbot/internal/prompt"
	"lynxbot/internal/types"
	"lynxbot/internal/usage"
)

// Describer asks the vision model about images.
type Describer struct {
	client inference.Client
	model  string
	lib    *prompt.Library
}

// NewDescriber creates a Describer. model may be empty for the client default.
func NewDescriber(client inference.Client, model string) *Describer {
	return &Describer{client: client, model: model, lib: prompt.Default()}
}

// Describe returns a short description of img. history gives the model the
// conversation the image was posted in; only user and assistant turns are sent.
func (d *Describer) Describe(ctx context.Context, history []types.Message, img types.Attachment) (string, error) {
	if !img.IsImage() {
		return "", fmt.Errorf("attachment %q is %s, not an image", img.Name, img.MimeType)
	}
	instruction, err := d.lib.Render(prompt.DescribeImage, nil)
	if err != nil {
		return "", err
	}

	msgs := append(types.Conversational(history), types.SystemMessage(instruction))
	msgs = append(msgs, types.Message{Role: types.RoleUser, Attachments: []types.Attachment{img}})

	resp, err := d.client.Complete(usage.WithOperation(ctx, "vision"), &inference.Request{
		Model:    d.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", img.Name, err)
	}
	text := strings.TrimSpace(resp.Text)
	logging.VisionDebug("described %s (%d bytes): %s", img.Name, len(img.Data), text)
	return text, nil
}

// DescribeAll describes every image in atts. Failures are logged and skipped.
func (d *Describer) DescribeAll(ctx context.Context, history []types.Message, atts []types.Attachment) []string {
	var out []string
	for _, a := range atts {
		if !a.IsImage() {
			continue
		}
		desc, err := d.Describe(ctx, history, a)
		if err != nil {
			logging.VisionWarn("%v", err)
			continue
		}
		if desc != "" {
			out = append(out, desc)
		}
	}
	return out
}
