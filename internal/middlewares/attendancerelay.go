package middlewares

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haydenmc/kelvinbot/internal/core"
	"github.com/haydenmc/kelvinbot/internal/markdown"
)

// AttendanceRelayConfig configures an AttendanceRelay middleware.
type AttendanceRelayConfig struct {
	SourceServiceID  core.ServiceID
	SourceRoomID     string // not consulted: UserListUpdate events carry no room
	DestServiceID    core.ServiceID
	DestRoomID       string
	SessionStartText string // roster prefix while a session is live
	SessionEndText   string // summary prefix once a session ends
	EndedEditText    string // replaces the live roster message on session end
	ReplyTimeout     time.Duration
	Logger           *slog.Logger
}

// DefaultReplyTimeout bounds how long AttendanceRelay waits for a
// message-id reply before giving up on a state transition.
const DefaultReplyTimeout = 10 * time.Second

// AttendanceRelay maintains a live roster message reflecting who is
// currently active in a source service, and posts a summary when the
// session ends. Its state is guarded by a mutex held for the whole
// duration of a state transition, including the await of any reply —
// this keeps transitions serialized so live_message_id is always set
// before the next update observes the "session ongoing" branch.
type AttendanceRelay struct {
	core.NoRun
	commands chan<- core.Command
	cfg      AttendanceRelayConfig

	mu    sync.Mutex
	state sessionState
}

type sessionState struct {
	active          bool
	activeNames     map[string]bool
	allParticipants map[string]bool
	sessionStart    time.Time
	liveMessageID   string
}

func newSessionState() sessionState {
	return sessionState{
		activeNames:     make(map[string]bool),
		allParticipants: make(map[string]bool),
	}
}

// NewAttendanceRelay constructs an AttendanceRelay middleware.
func NewAttendanceRelay(commands chan<- core.Command, cfg AttendanceRelayConfig) *AttendanceRelay {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReplyTimeout == 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	return &AttendanceRelay{
		commands: commands,
		cfg:      cfg,
		state:    newSessionState(),
	}
}

// OnEvent implements core.Middleware.
func (a *AttendanceRelay) OnEvent(event core.Event) core.Verdict {
	if event.ServiceID != a.cfg.SourceServiceID {
		return core.Continue
	}
	update, ok := event.Kind.(core.UserListUpdate)
	if !ok {
		return core.Continue
	}

	currentActive := make(map[string]bool)
	for _, u := range update.Users {
		if !u.IsSelf && u.IsActive {
			currentActive[u.DisplayName] = true
		}
	}

	go a.handleUserListChange(currentActive)
	return core.Continue
}

func (a *AttendanceRelay) handleUserListChange(currentActive map[string]bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	wasActive := a.state.active
	nowActive := len(currentActive) > 0

	switch {
	case !wasActive && nowActive:
		a.handleSessionStart(currentActive)
	case wasActive && nowActive:
		a.handleSessionUpdate(currentActive)
	case wasActive && !nowActive:
		a.handleSessionEnd()
	}
}

func (a *AttendanceRelay) handleSessionStart(currentActive map[string]bool) {
	a.cfg.Logger.Info("session started", "participants", len(currentActive))

	a.state.active = true
	a.state.sessionStart = time.Now()
	a.state.activeNames = currentActive
	a.state.allParticipants = cloneSet(currentActive)

	body := formatRoster(a.cfg.SessionStartText, a.state.activeNames)
	id, err := a.sendRoomMessageAwaitingID(body)
	if err != nil {
		a.cfg.Logger.Error("failed to send session start message", "error", err)
		return
	}
	a.state.liveMessageID = id
	a.cfg.Logger.Info("session start message sent")
}

func (a *AttendanceRelay) handleSessionUpdate(currentActive map[string]bool) {
	for name := range currentActive {
		a.state.allParticipants[name] = true
	}
	a.state.activeNames = currentActive

	body := formatRoster(a.cfg.SessionStartText, a.state.activeNames)

	if a.state.liveMessageID != "" {
		a.commands <- core.EditMessage{
			ServiceID:       a.cfg.DestServiceID,
			MessageID:       a.state.liveMessageID,
			NewBody:         body,
			NewMarkdownBody: renderMarkdownOrEmpty(body),
		}
		a.cfg.Logger.Debug("updated live message", "participants", len(a.state.activeNames))
		return
	}

	a.cfg.Logger.Info("no live message id, retrying initial send")
	id, err := a.sendRoomMessageAwaitingID(body)
	if err != nil {
		a.cfg.Logger.Warn("failed to send session start message, will retry on next update", "error", err)
		return
	}
	a.state.liveMessageID = id
	a.cfg.Logger.Info("session start message sent (retry after initial failure)")
}

func (a *AttendanceRelay) handleSessionEnd() {
	duration := time.Since(a.state.sessionStart)
	all := a.state.allParticipants

	a.cfg.Logger.Info("session ended", "duration", duration, "participants", len(all))

	if a.state.liveMessageID != "" {
		a.commands <- core.EditMessage{
			ServiceID:       a.cfg.DestServiceID,
			MessageID:       a.state.liveMessageID,
			NewBody:         a.cfg.EndedEditText,
			NewMarkdownBody: renderMarkdownOrEmpty(a.cfg.EndedEditText),
		}
	}

	summary := formatSessionSummary(a.cfg.SessionEndText, all, duration)
	a.commands <- core.SendRoomMessage{
		ServiceID:    a.cfg.DestServiceID,
		RoomID:       a.cfg.DestRoomID,
		Body:         summary,
		MarkdownBody: renderMarkdownOrEmpty(summary),
	}

	a.state = newSessionState()
}

// sendRoomMessageAwaitingID issues a SendRoomMessage and blocks the
// caller (already holding a.mu) for its reply, bounded by
// ReplyTimeout. The mutex stays held across the await so that
// liveMessageID is resolved before any subsequent transition runs.
func (a *AttendanceRelay) sendRoomMessageAwaitingID(body string) (string, error) {
	reply := core.NewReply[string]()
	a.commands <- core.SendRoomMessage{
		ServiceID:    a.cfg.DestServiceID,
		RoomID:       a.cfg.DestRoomID,
		Body:         body,
		MarkdownBody: renderMarkdownOrEmpty(body),
		Reply:        reply,
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ReplyTimeout)
	defer cancel()
	return reply.Await(ctx)
}

func cloneSet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func sortedNames(s map[string]bool) []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// formatRoster renders "{prefix}\n\n{lines}" where lines is the
// sorted display names joined by newlines, each prefixed "- ".
func formatRoster(prefix string, active map[string]bool) string {
	names := sortedNames(active)
	if len(names) == 0 {
		return prefix + "\n\nNo active participants"
	}
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = "- " + n
	}
	return prefix + "\n\n" + strings.Join(lines, "\n")
}

// formatSessionSummary renders the end-of-session summary: prefix,
// duration, then the sorted full participant list.
func formatSessionSummary(prefix string, all map[string]bool, duration time.Duration) string {
	names := sortedNames(all)
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = "- " + n
	}
	return fmt.Sprintf("%s\n\nDuration: %s\n\nParticipants:\n%s",
		prefix, formatDuration(duration), strings.Join(lines, "\n"))
}

// formatDuration renders d as "Hh Mm Ss", "Mm Ss", or "Ss" depending
// on magnitude.
func formatDuration(d time.Duration) string {
	total := int64(d.Seconds())
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// renderMarkdownOrEmpty renders plain to an HTML fragment for the
// MarkdownBody field, applying light emphasis to the roster prefix
// line. Rendering failures fall back to the plain text rather than
// leaving MarkdownBody empty, since goldmark only errors on writer
// failures that cannot occur with an in-memory buffer.
func renderMarkdownOrEmpty(plain string) string {
	emphasized := emphasizeFirstLine(plain)
	html, err := markdown.ToHTML(emphasized)
	if err != nil {
		return plain
	}
	return html
}

// emphasizeFirstLine bolds the first line of text (the roster/summary
// prefix) as Markdown source, leaving the rest untouched.
func emphasizeFirstLine(text string) string {
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) == 0 || lines[0] == "" {
		return text
	}
	lines[0] = "**" + lines[0] + "**"
	return strings.Join(lines, "\n")
}
