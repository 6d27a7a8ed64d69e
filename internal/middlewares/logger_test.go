package middlewares

import (
	"testing"

	"github.com/haydenmc/kelvinbot/internal/core"
)

func TestLoggerAlwaysContinues(t *testing.T) {
	t.Parallel()
	l := NewLogger(nil)

	events := []core.Event{
		{ServiceID: "svc", Kind: core.DirectMessage{UserID: "u1", Body: "hi"}},
		{ServiceID: "svc", Kind: core.UserListUpdate{Users: []core.User{{Username: "alice", IsSelf: true}}}},
		{ServiceID: "svc", Kind: core.ServiceReconnected{DowntimeSecs: 12.5, TotalAttempts: 3}},
	}
	for _, evt := range events {
		if got := l.OnEvent(evt); got != core.Continue {
			t.Errorf("OnEvent(%v) = %v, want Continue", evt, got)
		}
	}
}
