package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"lynxbot/internal/types"
)

// Scripted is a deterministic Client for tests and offline runs. Each call
// is answered by Handler if set, otherwise by the next queued reply.
type Scripted struct {
	mu      sync.Mutex
	Handler func(req *Request) (*Response, error)
	queue   []scriptedReply
	calls   []*Request
}

type scriptedReply struct {
	resp *Response
	err  error
}

// Reply queues a text reply.
func (s *Scripted) Reply(text string) *Scripted {
	return s.Push(&Response{Text: text}, nil)
}

// ReplyTool queues a reply that calls a single tool.
func (s *Scripted) ReplyTool(name string, input map[string]any) *Scripted {
	return s.Push(&Response{ToolCalls: []types.ToolCall{{ID: fmt.Sprintf("call_%s", name), Name: name, Input: input}}}, nil)
}

// Fail queues an error.
func (s *Scripted) Fail(err error) *Scripted {
	return s.Push(nil, err)
}

// Push queues a reply or error.
func (s *Scripted) Push(resp *Response, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scriptedReply{resp: resp, err: err})
	return s
}

// Complete implements Client.
func (s *Scripted) Complete(ctx context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	snapshot := *req
	snapshot.Messages = append([]types.Message(nil), req.Messages...)
	s.calls = append(s.calls, &snapshot)
	handler := s.Handler
	var next *scriptedReply
	if handler == nil && len(s.queue) > 0 {
		next = &s.queue[0]
		s.queue = s.queue[1:]
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &Error{Provider: "scripted", Model: req.Model, Err: err}
	}
	if handler != nil {
		return handler(req)
	}
	if next == nil {
		return nil, &Error{Provider: "scripted", Model: req.Model, Err: fmt.Errorf("no scripted reply left")}
	}
	if next.err != nil {
		return nil, next.err
	}
	return next.resp, nil
}

// Calls returns the requests seen so far.
func (s *Scripted) Calls() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Request(nil), s.calls...)
}

// Echo is the offline provider. Plain requests echo the last user line.
// Schema requests get an object with every string property set to the
// echoed text and every boolean property set from Bools (default false).
type Echo struct {
	Bools map[string]bool
}

// NewEcho returns an Echo that always decides to respond and never asks
// for tools.
func NewEcho() *Echo {
	return &Echo{Bools: map[string]bool{"Respond": true}}
}

// Complete implements Client.
func (e *Echo) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Provider: "echo", Model: req.Model, Err: err}
	}
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == types.RoleUser {
			last = req.Messages[i].Text
			break
		}
	}
	if req.Schema == nil {
		return &Response{Text: "echo: " + last, Model: "echo"}, nil
	}

	obj := map[string]any{}
	props, _ := req.Schema["properties"].(map[string]any)
	for name, raw := range props {
		prop, _ := raw.(map[string]any)
		switch prop["type"] {
		case "boolean":
			obj[name] = e.Bools[name]
		case "string":
			obj[name] = strings.TrimSpace(last)
		}
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, &Error{Provider: "echo", Model: req.Model, Err: err}
	}
	return &Response{Text: string(data), Model: "echo"}, nil
}
