package dummy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/haydenmc/kelvinbot/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunEmitsOnInterval(t *testing.T) {
	t.Parallel()
	events := make(chan core.Event, 16)
	svc := New(events, Config{ID: "test", EmitInterval: 5 * time.Millisecond, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	var first core.Event
	select {
	case first = <-events:
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
	if first.ServiceID != "test" {
		t.Errorf("ServiceID = %q, want test", first.ServiceID)
	}
	if _, ok := first.Kind.(core.RoomMessage); !ok {
		t.Errorf("Kind = %T, want RoomMessage", first.Kind)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunIsRestartable(t *testing.T) {
	t.Parallel()
	events := make(chan core.Event, 1)
	svc := New(events, Config{ID: "test", Logger: testLogger()})

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			svc.Run(ctx)
			close(done)
		}()
		time.Sleep(5 * time.Millisecond)
		if got := svc.State(); got != core.Ready {
			t.Errorf("run %d: state = %v, want Ready", i, got)
		}
		cancel()
		<-done
	}
	if got := svc.State(); got != core.Disconnected {
		t.Errorf("state after final run = %v, want Disconnected", got)
	}
}

func TestHandleCommandFulfillsReplies(t *testing.T) {
	t.Parallel()
	events := make(chan core.Event, 1)
	svc := New(events, Config{ID: "test", Logger: testLogger()})
	ctx := context.Background()

	reply := core.NewReply[string]()
	if err := svc.HandleCommand(ctx, core.SendRoomMessage{
		ServiceID: "test", RoomID: "r", Body: "hi", Reply: reply,
	}); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	id, err := reply.Await(ctx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if id == "" {
		t.Error("empty message id")
	}

	tokenReply := core.NewReply[string]()
	if err := svc.HandleCommand(ctx, core.GenerateInviteToken{
		ServiceID: "test", UserID: "u", Reply: tokenReply,
	}); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	token, err := tokenReply.Await(ctx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if token == "" {
		t.Error("empty token")
	}

	if got := len(svc.Commands()); got != 2 {
		t.Errorf("recorded commands = %d, want 2", got)
	}
}
