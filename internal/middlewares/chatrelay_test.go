package middlewares

import (
	"testing"
	"time"

	"github.com/haydenmc/kelvinbot/internal/core"
)

func testChatRelayConfig() ChatRelayConfig {
	return ChatRelayConfig{
		SourceServiceID: "src",
		SourceRoomID:    "room1",
		DestServiceID:   "dst",
		DestRoomID:      "room2",
		PrefixTag:       "Bridge",
	}
}

func TestChatRelayForwardsMessage(t *testing.T) {
	t.Parallel()
	cmds := make(chan core.Command, 1)
	r := NewChatRelay(cmds, testChatRelayConfig())

	verdict := r.OnEvent(core.Event{
		ServiceID: "src",
		Kind: core.RoomMessage{
			RoomID: "room1", Body: "hello", SenderID: "u1", SenderDisplayName: "Alice",
		},
	})
	if verdict != core.Continue {
		t.Errorf("OnEvent() = %v, want Continue", verdict)
	}

	select {
	case cmd := <-cmds:
		rm, ok := cmd.(core.SendRoomMessage)
		if !ok {
			t.Fatalf("command type = %T, want SendRoomMessage", cmd)
		}
		want := "[Bridge] Alice: hello"
		if rm.Body != want {
			t.Errorf("Body = %q, want %q", rm.Body, want)
		}
		if rm.ServiceID != "dst" || rm.RoomID != "room2" {
			t.Errorf("destination = %s/%s, want dst/room2", rm.ServiceID, rm.RoomID)
		}
	case <-time.After(time.Second):
		t.Fatal("no command emitted")
	}
}

func TestChatRelayRejectsSelfMessages(t *testing.T) {
	t.Parallel()
	cmds := make(chan core.Command, 1)
	r := NewChatRelay(cmds, testChatRelayConfig())

	r.OnEvent(core.Event{
		ServiceID: "src",
		Kind:      core.RoomMessage{RoomID: "room1", Body: "hi", IsSelf: true},
	})

	select {
	case cmd := <-cmds:
		t.Fatalf("unexpected command for is_self event: %+v", cmd)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestChatRelayRejectsWrongSource(t *testing.T) {
	t.Parallel()
	cmds := make(chan core.Command, 1)
	r := NewChatRelay(cmds, testChatRelayConfig())

	r.OnEvent(core.Event{ServiceID: "other", Kind: core.RoomMessage{RoomID: "room1", Body: "hi"}})

	select {
	case cmd := <-cmds:
		t.Fatalf("unexpected command for wrong source: %+v", cmd)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestChatRelayRejectsWrongRoom(t *testing.T) {
	t.Parallel()
	cmds := make(chan core.Command, 1)
	r := NewChatRelay(cmds, testChatRelayConfig())

	r.OnEvent(core.Event{ServiceID: "src", Kind: core.RoomMessage{RoomID: "other-room", Body: "hi"}})

	select {
	case cmd := <-cmds:
		t.Fatalf("unexpected command for wrong room: %+v", cmd)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestChatRelayFormatFallsBackToSenderID(t *testing.T) {
	t.Parallel()
	got := formatRelayedMessage("Tag", "u1", "", "hello")
	want := "[Tag] u1: hello"
	if got != want {
		t.Errorf("formatRelayedMessage() = %q, want %q", got, want)
	}
}
