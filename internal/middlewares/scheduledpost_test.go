package middlewares

import (
	"context"
	"testing"
	"time"

	"github.com/haydenmc/kelvinbot/internal/core"
)

func TestScheduledPostPostsOnInterval(t *testing.T) {
	t.Parallel()
	cmds := make(chan core.Command, 4)
	sp := NewScheduledPost(cmds, ScheduledPostConfig{
		DestServiceID: "dst",
		DestRoomID:    "room",
		Body:          "reminder",
		Interval:      10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sp.Run(ctx)
		close(done)
	}()

	select {
	case cmd := <-cmds:
		rm, ok := cmd.(core.SendRoomMessage)
		if !ok {
			t.Fatalf("command type = %T, want SendRoomMessage", cmd)
		}
		if rm.Body != "reminder" {
			t.Errorf("Body = %q, want reminder", rm.Body)
		}
	case <-time.After(time.Second):
		t.Fatal("no scheduled post emitted")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestScheduledPostOnEventAlwaysContinues(t *testing.T) {
	t.Parallel()
	sp := NewScheduledPost(make(chan core.Command, 1), ScheduledPostConfig{Interval: time.Hour})
	if got := sp.OnEvent(core.Event{}); got != core.Continue {
		t.Errorf("OnEvent() = %v, want Continue", got)
	}
}
