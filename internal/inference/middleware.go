package inference

import (
	"context"
	"time"

	"lynxbot/internal/logging"
	"lynxbot/internal/usage"
)

// WithTimeout bounds every call made through c by d.
func WithTimeout(c Client, d time.Duration) Client {
	return ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		timer := logging.StartTimer(logging.CategoryAPI, "complete "+req.Model)
		resp, err := c.Complete(callCtx, req)
		timer.StopWithThreshold(d / 2)
		if err != nil {
			logging.APIWarn("completion failed (model=%s tools=%d mode=%s): %v", req.Model, len(req.Tools), req.ToolMode, err)
			return nil, wrapError("unknown", req.Model, err)
		}
		return resp, nil
	})
}

// WithUsage records token usage of every successful call on tracker.
func WithUsage(c Client, tracker *usage.Tracker, provider string) Client {
	return ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		resp, err := c.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		model := resp.Model
		if model == "" {
			model = req.Model
		}
		tracker.Track(ctx, model, provider, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		return resp, nil
	})
}

// WithDefaultModel fills Request.Model when the caller left it empty.
func WithDefaultModel(c Client, model string) Client {
	return ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if req.Model == "" {
			clone := *req
			clone.Model = model
			req = &clone
		}
		return c.Complete(ctx, req)
	})
}
