// Package chattools registers the capabilities that act on the chat
// platform itself: status messages, threads, invites, profile lookups and
// website screenshots posted into the conversation.
package chattools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lynxbot/internal/browser"
	"lynxbot/internal/logging"
	"lynxbot/internal/platform"
	"lynxbot/internal/tools"
)

// ErrNoConversation is returned when a tool runs without a target conversation.
var ErrNoConversation = errors.New("no conversation in context")

const screenshotName = "website-screenshot.png"

// Screenshotter captures a PNG of a web page.
type Screenshotter interface {
	Screenshot(ctx context.Context, address string, fullPage bool) ([]byte, error)
}

// Deps are the collaborators the chat tools act through. Tools whose
// collaborator is nil are not registered.
type Deps struct {
	Sender    platform.Sender
	Workspace platform.Workspace
	Browser   Screenshotter

	// InviteMaxAge bounds invite lifetime; zero means one day.
	InviteMaxAge time.Duration
}

// RegisterAll registers every chat tool deps can back.
func RegisterAll(registry *tools.Registry, deps Deps) error {
	var all []*tools.Tool
	if deps.Sender != nil {
		all = append(all, MessageStatusUpdateTool(deps.Sender))
	}
	if deps.Workspace != nil {
		maxAge := deps.InviteMaxAge
		if maxAge <= 0 {
			maxAge = 24 * time.Hour
		}
		all = append(all,
			CreateThreadTool(deps.Workspace),
			CreateServerInviteTool(deps.Workspace, maxAge),
			GrabProfileInformationTool(deps.Workspace),
			ListChannelsTool(deps.Workspace),
		)
		if deps.Browser != nil {
			all = append(all, ScreenshotWebsiteTool(deps.Browser, deps.Workspace))
		}
	}
	for _, t := range all {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name, err)
		}
	}
	logging.ToolsDebug("registered %d chat tools", len(all))
	return nil
}

func target(ctx context.Context) (string, error) {
	seed := tools.ConversationFrom(ctx)
	if seed == "" {
		return "", ErrNoConversation
	}
	return seed, nil
}

// MessageStatusUpdateTool posts an interim status message.
func MessageStatusUpdateTool(s platform.Sender) *tools.Tool {
	return tools.Define("message_status_update",
		"Sends a message to the current channel to update the user on your execution status. Use this to make status updates for the user to know where you're at.",
		tools.ToolSchema{
			Required:   []string{"status"},
			Properties: map[string]tools.Property{"status": {Type: "string", Description: "The status message to post"}},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			seed, err := target(ctx)
			if err != nil {
				return "", err
			}
			status, err := tools.StringArg(args, "status")
			if err != nil {
				return "", err
			}
			if _, err := s.Send(ctx, seed, status, nil); err != nil {
				return "", fmt.Errorf("send status: %w", err)
			}
			return "Status update sent.", nil
		},
	).In(tools.CategoryPlatform)
}

// CreateThreadTool opens a new thread.
func CreateThreadTool(ws platform.Workspace) *tools.Tool {
	return tools.Define("create_thread",
		"Creates a thread on discord, use this to create a thread for users to use as a new chat room. Any user may call this tool.",
		tools.ToolSchema{
			Required:   []string{"threadName"},
			Properties: map[string]tools.Property{"threadName": {Type: "string", Description: "Name of the new thread"}},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			seed, err := target(ctx)
			if err != nil {
				return "", err
			}
			name, err := tools.StringArg(args, "threadName")
			if err != nil {
				return "", err
			}
			ch, err := ws.CreateThread(ctx, seed, name)
			if err != nil {
				return "", fmt.Errorf("create thread: %w", err)
			}
			return fmt.Sprintf("Created thread %q.", ch.Name), nil
		},
	).In(tools.CategoryPlatform)
}

// CreateServerInviteTool creates an invite link.
func CreateServerInviteTool(ws platform.Workspace, maxAge time.Duration) *tools.Tool {
	return tools.Define("create_server_invite",
		"Create a server invite link for the main discord guild.",
		tools.ToolSchema{},
		func(ctx context.Context, args map[string]any) (string, error) {
			seed, err := target(ctx)
			if err != nil {
				return "", err
			}
			link, err := ws.CreateInvite(ctx, seed, maxAge)
			if err != nil {
				return "", fmt.Errorf("create invite: %w", err)
			}
			return link, nil
		},
	).In(tools.CategoryPlatform)
}

// GrabProfileInformationTool looks up a user.
func GrabProfileInformationTool(ws platform.Workspace) *tools.Tool {
	return tools.Define("grab_profile_information",
		"Will grab detailed profile information from a profile in discord using their discord id. This will also contain general information like join-date and avatar url, roles, and bot status.",
		tools.ToolSchema{
			Required:   []string{"username"},
			Properties: map[string]tools.Property{"username": {Type: "string", Description: "User name or id to look up"}},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			seed, err := target(ctx)
			if err != nil {
				return "", err
			}
			user, err := tools.StringArg(args, "username")
			if err != nil {
				return "", err
			}
			p, err := ws.LookupProfile(ctx, seed, user)
			if errors.Is(err, platform.ErrProfileNotFound) {
				return fmt.Sprintf("No profile found for %q.", user), nil
			}
			if err != nil {
				return "", fmt.Errorf("lookup profile: %w", err)
			}
			return formatProfile(p), nil
		},
	).In(tools.CategoryPlatform)
}

func formatProfile(p platform.Profile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "IsBot: %t\n", p.Bot)
	fmt.Fprintf(&sb, "Id: %s\n", p.ID)
	fmt.Fprintf(&sb, "Username: %s\n", p.Name)
	fmt.Fprintf(&sb, "DisplayName: %s\n", p.DisplayName)
	if !p.JoinedAt.IsZero() {
		fmt.Fprintf(&sb, "JoinDate: %s\n", p.JoinedAt.Format(time.RFC1123))
	}
	if len(p.Roles) > 0 {
		fmt.Fprintf(&sb, "Roles: %s\n", strings.Join(p.Roles, ", "))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// ListChannelsTool lists channel names.
func ListChannelsTool(ws platform.Workspace) *tools.Tool {
	return tools.Define("list_channels",
		"Will return a list of strings for each channel name in the current guild.",
		tools.ToolSchema{},
		func(ctx context.Context, args map[string]any) (string, error) {
			seed, err := target(ctx)
			if err != nil {
				return "", err
			}
			channels, err := ws.ListChannels(ctx, seed)
			if err != nil {
				return "", fmt.Errorf("list channels: %w", err)
			}
			names := make([]string, 0, len(channels))
			for _, ch := range channels {
				names = append(names, ch.Name)
			}
			return strings.Join(names, "\n"), nil
		},
	).In(tools.CategoryPlatform)
}

// ScreenshotWebsiteTool captures a page and uploads it to the conversation.
func ScreenshotWebsiteTool(b Screenshotter, ws platform.Workspace) *tools.Tool {
	return tools.Define("screenshot_website",
		"Screenshots a website with a headless browser and uploads it to the current discord channel.",
		tools.ToolSchema{
			Required: []string{"websiteUrl"},
			Properties: map[string]tools.Property{
				"websiteUrl": {Type: "string", Description: "The website address to capture"},
				"fullsize":   {Type: "boolean", Description: "Capture the full scrollable page", Default: false},
			},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			seed, err := target(ctx)
			if err != nil {
				return "", err
			}
			raw, err := tools.StringArg(args, "websiteUrl")
			if err != nil {
				return "", err
			}
			address, err := browser.NormalizeURL(raw)
			if err != nil {
				return "", err
			}
			png, err := b.Screenshot(ctx, address, tools.BoolArg(args, "fullsize", false))
			if err != nil {
				return "", fmt.Errorf("screenshot %s: %w", address, err)
			}
			if _, err := ws.SendFile(ctx, seed, screenshotName, png, address); err != nil {
				return "", fmt.Errorf("upload screenshot: %w", err)
			}
			return fmt.Sprintf("Uploaded a screenshot of %s to the channel.", address), nil
		},
	).In(tools.CategoryPlatform)
}
