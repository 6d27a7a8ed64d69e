package middlewares

import (
	"strings"
	"testing"
	"time"

	"github.com/haydenmc/kelvinbot/internal/core"
)

func testAttendanceConfig() AttendanceRelayConfig {
	return AttendanceRelayConfig{
		SourceServiceID:  "src",
		DestServiceID:    "dst",
		DestRoomID:       "room",
		SessionStartText: "Live now",
		SessionEndText:   "Session ended",
		EndedEditText:    "Session over",
		ReplyTimeout:     time.Second,
	}
}

func usersUpdate(active ...string) core.Event {
	users := make([]core.User, len(active))
	for i, name := range active {
		users[i] = core.User{DisplayName: name, IsActive: true}
	}
	return core.Event{ServiceID: "src", Kind: core.UserListUpdate{Users: users}}
}

func TestAttendanceRelayFullLifecycle(t *testing.T) {
	t.Parallel()
	cmds := make(chan core.Command, 8)
	a := NewAttendanceRelay(cmds, testAttendanceConfig())

	// (false, false) - no-op.
	a.OnEvent(usersUpdate())
	select {
	case cmd := <-cmds:
		t.Fatalf("unexpected command on no-op transition: %+v", cmd)
	case <-time.After(20 * time.Millisecond):
	}

	// (false, true) - session start.
	a.OnEvent(usersUpdate("Alice"))
	start := mustRecv[core.SendRoomMessage](t, cmds)
	if !strings.Contains(start.Body, "Alice") {
		t.Errorf("start body = %q, want it to contain Alice", start.Body)
	}
	start.Reply.Fulfill("msg-1", nil)
	time.Sleep(20 * time.Millisecond) // let the holder goroutine observe the reply

	// (true, true) - update.
	a.OnEvent(usersUpdate("Alice", "Bob"))
	edit1 := mustRecv[core.EditMessage](t, cmds)
	if edit1.MessageID != "msg-1" {
		t.Errorf("edit MessageID = %q, want msg-1", edit1.MessageID)
	}
	if !strings.Contains(edit1.NewBody, "Bob") {
		t.Errorf("edit body = %q, want it to contain Bob", edit1.NewBody)
	}

	// (true, true) - Alice leaves, Bob stays.
	a.OnEvent(usersUpdate("Bob"))
	edit2 := mustRecv[core.EditMessage](t, cmds)
	if strings.Contains(edit2.NewBody, "Alice") {
		t.Errorf("edit body = %q, should not list Alice as still active", edit2.NewBody)
	}

	// (true, false) - session end.
	a.OnEvent(usersUpdate())
	edit3 := mustRecv[core.EditMessage](t, cmds)
	if edit3.NewBody != "Session over" {
		t.Errorf("ended edit body = %q, want %q", edit3.NewBody, "Session over")
	}
	summary := mustRecv[core.SendRoomMessage](t, cmds)
	if !strings.Contains(summary.Body, "Alice") || !strings.Contains(summary.Body, "Bob") {
		t.Errorf("summary body = %q, want it to list Alice and Bob", summary.Body)
	}
	if !strings.Contains(summary.Body, "Duration:") {
		t.Errorf("summary body = %q, want a Duration section", summary.Body)
	}
}

func mustRecv[T any](t *testing.T, cmds chan core.Command) T {
	t.Helper()
	select {
	case cmd := <-cmds:
		v, ok := cmd.(T)
		if !ok {
			t.Fatalf("command type = %T, want %T", cmd, v)
		}
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for command of type %T", *new(T))
	}
	panic("unreachable")
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m 30s"},
		{3700 * time.Second, "1h 1m 40s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.d); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestFormatRosterEmpty(t *testing.T) {
	t.Parallel()
	got := formatRoster("Live", map[string]bool{})
	want := "Live\n\nNo active participants"
	if got != want {
		t.Errorf("formatRoster() = %q, want %q", got, want)
	}
}
