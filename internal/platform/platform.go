// Package platform is the boundary to the chat platform: inbound events,
// outbound sends, presence status and the workspace operations used by
// chat tools.
package platform

import (
	"context"
	"errors"
	"time"

	"lynxbot/internal/types"
)

var (
	// ErrUnsupported is returned by gateways that lack an optional operation.
	ErrUnsupported = errors.New("operation not supported by this platform")

	// ErrProfileNotFound is returned by LookupProfile for unknown users.
	ErrProfileNotFound = errors.New("profile not found")
)

// MessageRef is the handle of a sent or received message. It is what
// replies thread to.
type MessageRef struct {
	Target string
	ID     string
}

// Event is one inbound chat message.
type Event struct {
	ConversationSeed string
	MessageID        string
	AuthorID         string
	AuthorName       string
	AuthorIsBot      bool
	Text             string
	CreatedAt        time.Time

	// ReplyToText and ReplyToAuthor are set when the message answers another.
	ReplyToText   string
	ReplyToAuthor string

	Attachments []types.Attachment
}

// Ref returns the handle of the event's message.
func (e Event) Ref() *MessageRef {
	if e.MessageID == "" {
		return nil
	}
	return &MessageRef{Target: e.ConversationSeed, ID: e.MessageID}
}

// Handler consumes inbound events.
type Handler func(ctx context.Context, ev Event)

// Sender posts messages. replyTo may be nil.
type Sender interface {
	Send(ctx context.Context, target, text string, replyTo *MessageRef) (MessageRef, error)
}

// StatusPublisher sets the bot's presence status. Best effort.
type StatusPublisher interface {
	SetStatus(ctx context.Context, text string) error
}

// Channel describes a conversation space.
type Channel struct {
	ID   string
	Name string
	Kind string
}

// Profile describes a platform user.
type Profile struct {
	ID          string
	Name        string
	DisplayName string
	Bot         bool
	JoinedAt    time.Time
	Roles       []string
}

// Workspace is the set of optional operations chat tools act through.
// target is a conversation seed.
type Workspace interface {
	CreateThread(ctx context.Context, target, name string) (Channel, error)
	ListChannels(ctx context.Context, target string) ([]Channel, error)
	CreateInvite(ctx context.Context, target string, maxAge time.Duration) (string, error)
	LookupProfile(ctx context.Context, target, user string) (Profile, error)
	SendFile(ctx context.Context, target, name string, data []byte, caption string) (MessageRef, error)
}

// Gateway is a connected platform.
type Gateway interface {
	Sender
	StatusPublisher
	// Run delivers events to h until ctx is done or the connection fails.
	Run(ctx context.Context, h Handler) error
}
