package usage

import (
	"context"
	"strings"
	"sync"
	"testing"
)

func TestTracker_TrackAggregates(t *testing.T) {
	tracker := NewTracker()

	ctx := WithConversation(WithOperation(context.Background(), "chat"), "chan-1")
	tracker.Track(ctx, "gemini-2.5-flash", "gemini", 10, 5)
	tracker.Track(ctx, "gemini-2.5-flash", "gemini", 2, 3)
	tracker.Track(context.Background(), "llama3", "openai", 1, 1)

	stats := tracker.Stats()
	if stats.Total.Input != 13 || stats.Total.Output != 9 || stats.Total.Total != 22 {
		t.Fatalf("Total=%+v, want input=13 output=9 total=22", stats.Total)
	}
	if stats.Calls != 3 {
		t.Fatalf("Calls=%d, want 3", stats.Calls)
	}
	if got := stats.ByModel["gemini-2.5-flash"]; got.Total != 20 {
		t.Fatalf("ByModel=%+v, want total=20", got)
	}
	if got := stats.ByOperation["chat"]; got.Total != 20 {
		t.Fatalf("ByOperation[chat]=%+v, want total=20", got)
	}
	if got := stats.ByOperation["unknown"]; got.Total != 2 {
		t.Fatalf("ByOperation[unknown]=%+v, want total=2", got)
	}
	if got := stats.ByConversation["chan-1"]; got.Total != 20 {
		t.Fatalf("ByConversation[chan-1]=%+v, want total=20", got)
	}
	if _, ok := stats.ByConversation[""]; ok {
		t.Fatal("unlabelled calls must not create an empty conversation bucket")
	}
}

func TestTracker_StatsIsCopy(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(WithOperation(context.Background(), "status"), "m", "p", 1, 1)

	stats := tracker.Stats()
	stats.ByOperation["status"] = TokenCounts{}

	if tracker.Stats().ByOperation["status"].Total != 2 {
		t.Fatal("Stats() must not expose internal maps")
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tracker := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Track(context.Background(), "m", "p", 1, 0)
		}()
	}
	wg.Wait()

	if got := tracker.Stats().Calls; got != 50 {
		t.Fatalf("Calls=%d, want 50", got)
	}
}

func TestTracker_Summary(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(WithOperation(context.Background(), "thought"), "m", "p", 3, 4)

	out := tracker.Summary()
	if !strings.Contains(out, "1 calls, 7 tokens") || !strings.Contains(out, "thought") {
		t.Fatalf("unexpected summary: %q", out)
	}
}
