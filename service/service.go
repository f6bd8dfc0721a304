package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/roomcast/roomcast/model"
	"github.com/rs/zerolog"
)

const (
	replyNickTaken     = "A user by that name already exists."
	replyAlreadyJoined = "Already joined."
)

type (
	RoomState interface {
		AppendMessage(msg model.ChatMessage) int
		SnapshotTail(n int) []model.ChatMessage
		TryClaimNick(nick string) bool
		ReleaseNick(nick string)
	}

	Broadcaster interface {
		Connect(id string, wire model.Wire)
		Disconnect(id string)
		Broadcast(frame []byte)
		Send(ctx context.Context, id string, frame []byte) bool
	}

	Config struct {
		Logger  *zerolog.Logger
		State   RoomState
		Hub     Broadcaster
		Backlog int
	}

	// Engine is the session protocol state machine. One engine serves the
	// whole room; per-session state is the claimed nickname slot.
	Engine struct {
		logger  zerolog.Logger
		state   RoomState
		hub     Broadcaster
		backlog int

		// commit serializes append+fanout so broadcast order always
		// matches history order.
		commit sync.Mutex

		mx    sync.Mutex
		nicks map[string]string // session id -> claimed nick, "" until joined
	}
)

func NewEngine(cfg Config) *Engine {
	return &Engine{
		logger:  cfg.Logger.With().Str("component", "engine").Logger(),
		state:   cfg.State,
		hub:     cfg.Hub,
		backlog: cfg.Backlog,
		nicks:   make(map[string]string),
	}
}

// HandleOpen registers the session and replays the recent backlog to it,
// oldest first, each entry framed as an individual /message envelope.
// Connect, snapshot, and replay form one critical section under the commit
// mutex: a chat committed by another session cannot land on the fresh wire
// before the replay, so the newcomer never sees it twice or out of order.
func (e *Engine) HandleOpen(ctx context.Context, id string, wire model.Wire) {
	e.mx.Lock()
	e.nicks[id] = ""
	e.mx.Unlock()

	e.commit.Lock()
	e.hub.Connect(id, wire)

	backlog := e.state.SnapshotTail(e.backlog)
	for _, msg := range backlog {
		frame, err := model.Encode(model.PathMessage, msg)
		if err != nil {
			e.logger.Error().Err(err).Msg("cannot encode backlog entry")
			continue
		}
		e.hub.Send(ctx, id, frame)
	}
	e.commit.Unlock()

	e.logger.Debug().Str("session", id).Int("backlog", len(backlog)).Msg("session opened")
}

// HandleFrame dispatches one inbound frame. Undecodable frames are answered
// with an /error reply and do not close the connection.
func (e *Engine) HandleFrame(ctx context.Context, id string, raw []byte) {
	env, err := model.DecodeEnvelope(raw)
	if err != nil {
		e.replyParseError(ctx, id, raw)
		return
	}

	payload, err := model.DecodePayload(env.Content)
	if err != nil {
		e.replyParseError(ctx, id, raw)
		return
	}

	switch p := payload.(type) {
	case model.ChatMessage:
		e.handleChat(id, p, raw)
	case model.JoinRequest:
		e.handleJoin(ctx, id, p)
	}
}

// handleChat appends the message and echoes the original frame verbatim to
// the whole room, sender included. A prior join is not required and the nick
// is taken from the payload as supplied.
func (e *Engine) handleChat(id string, msg model.ChatMessage, raw []byte) {
	e.commit.Lock()
	pos := e.state.AppendMessage(msg)
	e.hub.Broadcast(raw)
	e.commit.Unlock()

	e.logger.Debug().Str("session", id).Str("nick", msg.Nick).Int("position", pos).Msg("message committed")
}

func (e *Engine) handleJoin(ctx context.Context, id string, join model.JoinRequest) {
	e.mx.Lock()
	joined := e.nicks[id] != ""
	e.mx.Unlock()

	// A session claims at most one name for its lifetime.
	if joined {
		e.reply(ctx, id, replyAlreadyJoined)
		return
	}

	if !e.state.TryClaimNick(join.JoinNick) {
		e.reply(ctx, id, replyNickTaken)
		return
	}

	e.mx.Lock()
	e.nicks[id] = join.JoinNick
	e.mx.Unlock()

	e.announce(model.PathJoined, model.JoinAnnouncement(join.JoinNick))
	e.logger.Info().Str("session", id).Str("nick", join.JoinNick).Msg("session joined")
}

// HandleClose releases the session's nickname, announces the departure to
// the remaining sessions, and forgets the session. Safe to call for sessions
// that never joined.
func (e *Engine) HandleClose(_ context.Context, id string) {
	e.mx.Lock()
	nick := e.nicks[id]
	delete(e.nicks, id)
	e.mx.Unlock()

	e.hub.Disconnect(id)

	if nick == "" {
		return
	}

	e.state.ReleaseNick(nick)
	e.announce(model.PathLeft, model.LeaveAnnouncement(nick))
	e.logger.Info().Str("session", id).Str("nick", nick).Msg("session left")
}

// announce commits a system message and fans it out as one atomic step.
func (e *Engine) announce(path string, msg model.ChatMessage) {
	frame, err := model.Encode(path, msg)
	if err != nil {
		e.logger.Error().Err(err).Str("path", path).Msg("cannot encode announcement")
		return
	}

	e.commit.Lock()
	e.state.AppendMessage(msg)
	e.hub.Broadcast(frame)
	e.commit.Unlock()
}

func (e *Engine) replyParseError(ctx context.Context, id string, raw []byte) {
	e.logger.Warn().Str("session", id).Msg("undecodable frame")
	e.reply(ctx, id, fmt.Sprintf("Unable to parse message %q.", raw))
}

func (e *Engine) reply(ctx context.Context, id string, text string) {
	frame, err := model.Encode(model.PathError, text)
	if err != nil {
		e.logger.Error().Err(err).Msg("cannot encode error reply")
		return
	}
	if !e.hub.Send(ctx, id, frame) {
		e.logger.Warn().Str("session", id).Msg("error reply not delivered")
	}
}
