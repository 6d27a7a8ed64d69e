package core

import (
	"context"
	"errors"
	"testing"
)

func TestCommandTargetService(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		cmd  Command
		want ServiceID
	}{
		{"send dm", SendDirectMessage{ServiceID: "a", UserID: "u"}, "a"},
		{"send room", SendRoomMessage{ServiceID: "b", RoomID: "r"}, "b"},
		{"edit", EditMessage{ServiceID: "c", MessageID: "m"}, "c"},
		{"invite", GenerateInviteToken{ServiceID: "d", UserID: "u"}, "d"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.cmd.TargetService(); got != tc.want {
				t.Errorf("TargetService() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCommandDropReplyIfPending(t *testing.T) {
	t.Parallel()

	reply := NewReply[string]()
	cmd := SendDirectMessage{ServiceID: "a", Reply: reply}
	wantErr := errors.New("boom")

	cmd.dropReplyIfPending(wantErr)

	got, err := reply.Await(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("Await() error = %v, want %v", err, wantErr)
	}
	if got != "" {
		t.Errorf("Await() value = %q, want empty", got)
	}
}

func TestCommandDropReplyIfPendingNilReplyIsNoop(t *testing.T) {
	t.Parallel()
	cmd := SendRoomMessage{ServiceID: "a"}
	// Must not panic with a nil Reply.
	cmd.dropReplyIfPending(errors.New("boom"))
}

func TestEditMessageDropReplyIfPendingIsNoop(t *testing.T) {
	t.Parallel()
	cmd := EditMessage{ServiceID: "a", MessageID: "m"}
	// EditMessage has no reply; this must not panic.
	cmd.dropReplyIfPending(errors.New("boom"))
}
