package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/types"
)

// League status value that allows the draft to begin.
const statusDrafting = "drafting"

const lookupTimeout = 5 * time.Second

// Directory answers authorization questions from the league store. Lookups
// are issued off the room goroutine; only their results are applied to room
// state, through the inbox like every other mutation.
type Directory interface {
	LeagueStatus(ctx context.Context, code string) (string, error)
	IsAdmin(ctx context.Context, code, username string) (bool, error)
}

// Sink receives final rosters on draft submission. The room does not retry
// failures; the initiating connection is told and may re-issue.
type Sink interface {
	SaveDraft(ctx context.Context, code string, rosters map[string][]string) error
}

type Deps struct {
	Logger    *zap.Logger
	Directory Directory
	Sink      Sink
}

type Msg interface{ isRoomMsg() }

type Join struct {
	Username string
	ConnID   string
	Team     string
	Outbox   chan types.ServerMessage
}

type Leave struct{ ConnID string }

type FromClient struct {
	ConnID string
	Cmd    engine.Command
}

type GetTurn struct{ ConnID string }

type StartDraft struct{ ConnID string }

type SubmitDraft struct{ ConnID string }

type Chat struct {
	Username string
	Text     string
}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

// Results of async store lookups, fed back through the inbox so they land
// under the same serialization as everything else.
type adminGrant struct {
	Username string
	Grant    bool
}

type startChecked struct {
	ConnID string
	Status string
	Err    error
}

type submitDone struct {
	ConnID string
	Err    error
}

func (Join) isRoomMsg()         {}
func (Leave) isRoomMsg()        {}
func (FromClient) isRoomMsg()   {}
func (GetTurn) isRoomMsg()      {}
func (StartDraft) isRoomMsg()   {}
func (SubmitDraft) isRoomMsg()  {}
func (Chat) isRoomMsg()         {}
func (GetState) isRoomMsg()     {}
func (Shutdown) isRoomMsg()     {}
func (adminGrant) isRoomMsg()   {}
func (startChecked) isRoomMsg() {}
func (submitDone) isRoomMsg()   {}

// View reflects internal state for tests without data races.
type View struct {
	Version    int
	NumClients int
	State      engine.State
}

// Room serializes all access to one draft session: a single goroutine owns
// the engine state and every outbox, so broadcast order always matches the
// order mutations committed.
type Room struct {
	id      string
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan types.ServerMessage
	deps    Deps
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRoom(parent context.Context, id string, rosterSize int, deps Deps) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		id:      id,
		inbox:   make(chan Msg, 64),
		state:   engine.NewState(rosterSize),
		clients: make(map[string]chan types.ServerMessage),
		deps:    deps,
		logger:  deps.Logger.With(zap.String("room", id)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Clients reports how many connections are attached, read through the room
// goroutine so it never races the loop.
func (r *Room) Clients() int {
	reply := make(chan View, 1)
	select {
	case r.inbox <- GetState{Reply: reply}:
	case <-r.ctx.Done():
		return 0
	}
	// The send can land in the buffer right as the room shuts down; never
	// wait on a reply the loop will not produce.
	select {
	case v := <-reply:
		return v.NumClients
	case <-r.ctx.Done():
		return 0
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)
			case Leave:
				r.handleLeave(msg)
			case FromClient:
				r.handleCommand(msg.ConnID, msg.Cmd)
			case GetTurn:
				r.handleGetTurn(msg)
			case StartDraft:
				r.handleStartDraft(msg)
			case startChecked:
				r.handleStartChecked(msg)
			case SubmitDraft:
				r.handleSubmitDraft(msg)
			case submitDone:
				r.handleSubmitDone(msg)
			case adminGrant:
				_, newState, _ := engine.Apply(r.state, engine.Command{
					Type:     engine.CmdGrantAdmin,
					Username: msg.Username,
					Grant:    msg.Grant,
				})
				r.state = newState
			case Chat:
				r.broadcast(types.ServerMessage{
					Type:     "receiveMessage",
					Username: msg.Username,
					Text:     msg.Text,
				})
			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					State:      r.state,
				}
			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	events, newState, err := engine.Apply(r.state, engine.Command{
		Type:     engine.CmdJoin,
		Username: msg.Username,
		ConnID:   msg.ConnID,
		Team:     msg.Team,
	})
	if err != nil {
		// Join cannot fail today; guard against future validations.
		r.sendTo(msg.ConnID, errorMessage(err))
		return
	}
	r.state = newState
	r.version++
	r.clients[msg.ConnID] = msg.Outbox

	if engine.ContainsEvent(events, engine.EvtReconnected) {
		r.sendTo(msg.ConnID, types.ServerMessage{
			Type:     "reconnect",
			Username: msg.Username,
			ConnID:   msg.ConnID,
		})
		r.logger.Info("participant reconnected", zap.String("username", msg.Username))
	} else {
		r.logger.Info("participant joined", zap.String("username", msg.Username))
	}

	// Full snapshot to the joiner, join notice (with the fresh connection
	// ref) to everyone else.
	r.sendTo(msg.ConnID, types.ServerMessage{
		Type:    "connected",
		Version: r.version,
		Room:    types.NewRoomSnapshot(r.id, r.state),
	})
	r.broadcastExcept(msg.ConnID, types.ServerMessage{
		Type:     "userJoined",
		Username: msg.Username,
		ConnID:   msg.ConnID,
	})

	go r.lookupAdmin(msg.Username)
}

func (r *Room) lookupAdmin(username string) {
	ctx, cancel := context.WithTimeout(r.ctx, lookupTimeout)
	defer cancel()

	grant, err := r.deps.Directory.IsAdmin(ctx, r.id, username)
	if err != nil {
		// Treated as "not authorized", never fatal.
		r.logger.Warn("admin lookup failed", zap.String("username", username), zap.Error(err))
		return
	}
	select {
	case r.inbox <- adminGrant{Username: username, Grant: grant}:
	case <-r.ctx.Done():
	}
}

func (r *Room) handleLeave(msg Leave) {
	if out, ok := r.clients[msg.ConnID]; ok {
		delete(r.clients, msg.ConnID)
		close(out)
	}

	events, newState, err := engine.Apply(r.state, engine.Command{
		Type:   engine.CmdDisconnect,
		ConnID: msg.ConnID,
	})
	if err != nil {
		// Unknown connection at disconnect time; log and move on.
		r.logger.Warn("disconnect for unknown connection", zap.String("conn", msg.ConnID))
		return
	}
	r.state = newState
	r.version++
	r.emit(events)
}

func (r *Room) handleCommand(connID string, cmd engine.Command) {
	events, newState, err := engine.Apply(r.state, cmd)
	if err != nil {
		r.sendTo(connID, errorMessage(err))
		return
	}
	r.state = newState
	r.version++
	r.emit(events)
}

func (r *Room) handleGetTurn(msg GetTurn) {
	username, err := engine.CurrentTurn(r.state)
	if err != nil {
		r.sendTo(msg.ConnID, errorMessage(err))
		return
	}
	r.sendTo(msg.ConnID, types.ServerMessage{Type: "currentTurn", Username: username})
}

func (r *Room) handleStartDraft(msg StartDraft) {
	// The league must report a drafting status before the room may leave
	// Forming. The lookup runs off this goroutine; its result comes back
	// as a startChecked message and the transition happens there.
	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, lookupTimeout)
		defer cancel()

		status, err := r.deps.Directory.LeagueStatus(ctx, r.id)
		select {
		case r.inbox <- startChecked{ConnID: msg.ConnID, Status: status, Err: err}:
		case <-r.ctx.Done():
		}
	}()
}

func (r *Room) handleStartChecked(msg startChecked) {
	if msg.Err != nil {
		r.logger.Warn("league status lookup failed", zap.Error(msg.Err))
		r.sendTo(msg.ConnID, types.ServerMessage{
			Type:  "error",
			Code:  "upstream_unavailable",
			Error: "league store unavailable, try again",
		})
		return
	}
	if msg.Status != statusDrafting {
		r.sendTo(msg.ConnID, types.ServerMessage{
			Type:  "error",
			Code:  "not_authorized",
			Error: "league is not ready to draft",
		})
		return
	}
	r.handleCommand(msg.ConnID, engine.Command{Type: engine.CmdStartDraft, ConnID: msg.ConnID})
}

func (r *Room) handleSubmitDraft(msg SubmitDraft) {
	requester := participantByConn(r.state, msg.ConnID)
	if requester == nil {
		r.sendTo(msg.ConnID, errorMessage(engine.ErrNotInRoom))
		return
	}
	if !requester.IsAdmin {
		r.sendTo(msg.ConnID, errorMessage(engine.ErrNotAuthorized))
		return
	}
	if r.state.Phase == engine.PhaseForming {
		r.sendTo(msg.ConnID, errorMessage(engine.ErrDraftNotStarted))
		return
	}

	// Snapshot the rosters before leaving the room goroutine.
	rosters := make(map[string][]string, len(r.state.Participants))
	for _, p := range r.state.Participants {
		roster := make([]string, len(p.Roster))
		copy(roster, p.Roster)
		rosters[p.Username] = roster
	}

	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, lookupTimeout)
		defer cancel()

		err := r.deps.Sink.SaveDraft(ctx, r.id, rosters)
		select {
		case r.inbox <- submitDone{ConnID: msg.ConnID, Err: err}:
		case <-r.ctx.Done():
		}
	}()
}

func (r *Room) handleSubmitDone(msg submitDone) {
	if msg.Err != nil {
		r.logger.Warn("draft submission failed", zap.Error(msg.Err))
		r.sendTo(msg.ConnID, types.ServerMessage{
			Type:  "error",
			Code:  "upstream_unavailable",
			Error: "could not persist draft results, try again",
		})
		return
	}
	r.logger.Info("draft submitted")
	r.sendTo(msg.ConnID, types.ServerMessage{Type: "draftSubmitted"})
}

// emit turns engine events into outbound messages, in event order.
func (r *Room) emit(events []engine.Event) {
	for _, event := range events {
		switch event.Type {
		case engine.EvtDraftStarted:
			r.broadcast(types.ServerMessage{Type: "draftStarted"})
		case engine.EvtTurnAdvanced:
			r.broadcast(types.ServerMessage{Type: "currentTurn", Username: event.Username})
		case engine.EvtPlayerPicked:
			r.broadcast(types.ServerMessage{
				Type:     "playerPicked",
				Username: event.Username,
				PlayerID: event.PlayerID,
			})
		case engine.EvtPlayerRemoved:
			r.broadcast(types.ServerMessage{
				Type:     "playerRemoved",
				Username: event.Username,
				PlayerID: event.PlayerID,
			})
		case engine.EvtDraftEnded:
			r.broadcast(types.ServerMessage{Type: "draftEnded"})
			r.logger.Info("draft ended")
		case engine.EvtLeft:
			r.broadcast(types.ServerMessage{Type: "userLeft", Username: event.Username})
		}
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) broadcast(msg types.ServerMessage) {
	r.broadcastExcept("", msg)
}

func (r *Room) broadcastExcept(exclude string, msg types.ServerMessage) {
	for id, ch := range r.clients {
		if id == exclude {
			continue
		}
		select {
		case ch <- msg:
		default:
			// Slow or dead consumer; drop it rather than stall the room.
			close(ch)
			delete(r.clients, id)
		}
	}
}

func (r *Room) sendTo(connID string, msg types.ServerMessage) {
	ch, ok := r.clients[connID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		close(ch)
		delete(r.clients, connID)
	}
}

func participantByConn(s engine.State, connID string) *engine.Participant {
	for i := range s.Participants {
		if s.Participants[i].ConnID == connID {
			return &s.Participants[i]
		}
	}
	return nil
}

func errorMessage(err error) types.ServerMessage {
	return types.ServerMessage{Type: "error", Code: errCode(err), Error: err.Error()}
}

func errCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, engine.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, engine.ErrDraftNotStarted):
		return "draft_not_started"
	case errors.Is(err, engine.ErrDraftEnded):
		return "draft_ended"
	case errors.Is(err, engine.ErrAlreadyDrafting):
		return "already_drafting"
	case errors.Is(err, engine.ErrPlayerTaken):
		return "player_taken"
	case errors.Is(err, engine.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, engine.ErrNotAuthorized):
		return "not_authorized"
	default:
		return "internal"
	}
}
