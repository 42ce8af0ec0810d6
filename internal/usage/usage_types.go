package usage

import "time"

// Event represents a single inference call.
type Event struct {
	Timestamp    time.Time
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
	Operation    string // chat, gate_respond, gate_tools, tool, thought, status, vision, research
	Conversation string
}

// AggregatedStats holds counters broken down by various dimensions.
type AggregatedStats struct {
	Total          TokenCounts
	Calls          int64
	ByProvider     map[string]TokenCounts
	ByModel        map[string]TokenCounts
	ByOperation    map[string]TokenCounts
	ByConversation map[string]TokenCounts
}

// TokenCounts holds input/output sums.
type TokenCounts struct {
	Input  int64
	Output int64
	Total  int64
}

func (tc *TokenCounts) Add(input, output int) {
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
}
