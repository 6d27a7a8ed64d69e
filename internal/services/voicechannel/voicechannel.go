// Package voicechannel adapts a voice-server text channel to the bus
// over a WebSocket gateway connection. The wire codec is this package's
// own: JSON frames with a type tag, request/ack correlation by
// client-generated ref ids.
package voicechannel

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/haydenmc/kelvinbot/internal/core"
)

// Config configures a voicechannel Service.
type Config struct {
	ID core.ServiceID
	// URL is the gateway endpoint, http(s) or ws(s) scheme.
	URL string
	// Token authenticates the bot against the gateway.
	Token string
	// Channel is the text channel to join and post into.
	Channel string
	Logger  *slog.Logger
}

// Gateway frame types.
const (
	frameAuth     = "auth"
	frameAuthOK   = "auth_ok"
	frameAuthBad  = "auth_invalid"
	frameMessage  = "message"
	frameUserList = "userlist"
	frameSend     = "send"
	frameEdit     = "edit"
	frameAck      = "ack"
	frameError    = "error"
)

// frame is the gateway's generic message format. Fields are a union
// across frame types; unused ones stay at their zero value.
type frame struct {
	Type string `json:"type"`

	// auth
	Token   string `json:"token,omitempty"`
	Channel string `json:"channel,omitempty"`

	// message
	SenderID   string `json:"sender_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	Body       string `json:"body,omitempty"`
	Self       bool   `json:"self,omitempty"`

	// userlist
	Users []wireUser `json:"users,omitempty"`

	// send / edit / ack / error
	Ref       string `json:"ref,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Message   string `json:"message,omitempty"` // error detail
}

type wireUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Active      bool   `json:"active"`
	Self        bool   `json:"self"`
}

// ackResult resolves one pending send/edit request.
type ackResult struct {
	messageID string
	err       error
}

// Service is the voice-server text-channel adapter.
type Service struct {
	cfg    Config
	events chan<- core.Event

	connMu sync.Mutex // guards conn and all writes on it
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan ackResult
}

// New constructs a voicechannel Service that produces onto events.
func New(events chan<- core.Event, cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		events:  events,
		pending: make(map[string]chan ackResult),
	}
}

// Run implements core.Service: dial, authenticate, then read frames
// until the connection fails or ctx is cancelled. Any read failure
// returns an error; the Bus restarts the service with backoff.
func (s *Service) Run(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		conn.Close()
		s.failPending(core.ErrReplyDropped)
	}()

	if err := s.authenticate(conn); err != nil {
		return err
	}
	s.cfg.Logger.Info("voicechannel connected", "service_id", s.cfg.ID, "channel", s.cfg.Channel)

	// Unblock the blocking read below when ctx is cancelled. Closing
	// the connection is the only way to interrupt gorilla's ReadJSON.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gateway read: %w", err)
		}
		s.handleFrame(ctx, f)
	}
}

func (s *Service) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	s.cfg.Logger.Info("connecting to voice gateway", "url", u.String())

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  64 * 1024,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	conn.SetReadLimit(1024 * 1024)
	return conn, nil
}

func (s *Service) authenticate(conn *websocket.Conn) error {
	if err := conn.WriteJSON(frame{Type: frameAuth, Token: s.cfg.Token, Channel: s.cfg.Channel}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	var resp frame
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	switch resp.Type {
	case frameAuthOK:
		return nil
	case frameAuthBad:
		return fmt.Errorf("gateway rejected credentials")
	default:
		return fmt.Errorf("unexpected auth response: %s", resp.Type)
	}
}

func (s *Service) handleFrame(ctx context.Context, f frame) {
	switch f.Type {
	case frameMessage:
		s.emit(ctx, core.RoomMessage{
			RoomID:            f.Channel,
			Body:              f.Body,
			IsLocalUser:       true, // gateway users are always server-local
			SenderID:          f.SenderID,
			SenderDisplayName: f.SenderName,
			IsSelf:            f.Self,
		})

	case frameUserList:
		users := make([]core.User, len(f.Users))
		for i, u := range f.Users {
			users[i] = core.User{
				ID:          u.ID,
				Username:    u.Username,
				DisplayName: u.DisplayName,
				IsActive:    u.Active,
				IsSelf:      u.Self,
			}
		}
		s.emit(ctx, core.UserListUpdate{Users: users})

	case frameAck:
		s.resolvePending(f.Ref, ackResult{messageID: f.MessageID})

	case frameError:
		s.resolvePending(f.Ref, ackResult{err: fmt.Errorf("gateway error: %s", f.Message)})

	default:
		s.cfg.Logger.Debug("unhandled gateway frame", "type", f.Type)
	}
}

func (s *Service) emit(ctx context.Context, kind core.EventKind) {
	select {
	case s.events <- core.Event{ServiceID: s.cfg.ID, Kind: kind}:
	case <-ctx.Done():
	}
}

// HandleCommand implements core.Service. Sends and edits are written to
// the gateway from a spawned goroutine so the Bus is never blocked on
// the socket; replies are fulfilled when the matching ack frame
// arrives.
func (s *Service) HandleCommand(_ context.Context, cmd core.Command) error {
	switch c := cmd.(type) {
	case core.SendRoomMessage:
		room := c.RoomID
		if room == "" {
			room = s.cfg.Channel
		}
		go s.request(frame{Type: frameSend, Channel: room, Body: c.Body}, c.Reply)
		return nil

	case core.SendDirectMessage:
		go s.request(frame{Type: frameSend, SenderID: c.UserID, Body: c.Body}, c.Reply)
		return nil

	case core.EditMessage:
		go s.request(frame{Type: frameEdit, MessageID: c.MessageID, Body: c.NewBody}, nil)
		return nil

	case core.GenerateInviteToken:
		return fmt.Errorf("voicechannel: token issuance not supported")

	default:
		return fmt.Errorf("voicechannel: unsupported command %T", cmd)
	}
}

// request writes a frame with a fresh ref, waits for its ack, and
// fulfills reply (when non-nil) with the resulting message id.
func (s *Service) request(f frame, reply *core.Reply[string]) {
	f.Ref = uuid.NewString()

	ackCh := make(chan ackResult, 1)
	s.pendingMu.Lock()
	s.pending[f.Ref] = ackCh
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, f.Ref)
		s.pendingMu.Unlock()
	}()

	if err := s.write(f); err != nil {
		if reply != nil {
			reply.Fulfill("", err)
		} else {
			s.cfg.Logger.Error("gateway write failed", "error", err)
		}
		return
	}

	select {
	case res := <-ackCh:
		if reply != nil {
			reply.Fulfill(res.messageID, res.err)
		} else if res.err != nil {
			s.cfg.Logger.Error("gateway request failed", "error", res.err)
		}
	case <-time.After(30 * time.Second):
		if reply != nil {
			reply.Fulfill("", fmt.Errorf("timeout waiting for gateway ack"))
		}
	}
}

func (s *Service) write(f frame) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	return s.conn.WriteJSON(f)
}

func (s *Service) resolvePending(ref string, res ackResult) {
	s.pendingMu.Lock()
	ch, ok := s.pending[ref]
	s.pendingMu.Unlock()
	if !ok {
		s.cfg.Logger.Debug("ack for unknown ref", "ref", ref)
		return
	}
	ch <- res
}

// failPending resolves every in-flight request with err. Called when
// the connection is torn down so no awaiter is left hanging across a
// reconnect.
func (s *Service) failPending(err error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for ref, ch := range s.pending {
		select {
		case ch <- ackResult{err: err}:
		default:
		}
		delete(s.pending, ref)
	}
}
