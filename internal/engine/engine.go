package engine

import (
	"errors"
	"maps"
	"slices"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrNotInRoom = errors.New("connection not in room")
var ErrDraftNotStarted = errors.New("draft not started")
var ErrDraftEnded = errors.New("draft already ended")
var ErrAlreadyDrafting = errors.New("draft already started")
var ErrPlayerTaken = errors.New("player already taken")
var ErrNotYourTurn = errors.New("not your turn")
var ErrNotAuthorized = errors.New("not authorized")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseForming  Phase = "forming"
	PhaseDrafting Phase = "drafting"
	PhaseEnded    Phase = "ended"
)

const DefaultRosterSize = 5

// Participant is one drafter in a room. Username is the identity key across
// reconnects; ConnID is whatever connection currently speaks for it.
type Participant struct {
	Username  string
	ConnID    string
	Team      string // team binding from sign-in; empty means no draft seat
	Roster    []string
	Connected bool
	IsAdmin   bool
}

// State is the whole room as the engine sees it. Participant order is join
// order and never changes; it doubles as the draft order.
type State struct {
	Participants []Participant
	Taken        map[string]bool
	TurnIndex    int
	Phase        Phase
	RosterSize   int
}

func NewState(rosterSize int) State {
	if rosterSize <= 0 {
		rosterSize = DefaultRosterSize
	}
	return State{
		Taken:      map[string]bool{},
		Phase:      PhaseForming,
		RosterSize: rosterSize,
	}
}

type CommandType string

const (
	CmdJoin         CommandType = "Join"
	CmdDisconnect   CommandType = "Disconnect"
	CmdStartDraft   CommandType = "StartDraft"
	CmdPickPlayer   CommandType = "PickPlayer"
	CmdRemovePlayer CommandType = "RemovePlayer"
	CmdGrantAdmin   CommandType = "GrantAdmin"
)

type Command struct {
	Type     CommandType
	Username string
	ConnID   string
	Team     string
	PlayerID string
	Grant    bool
}

type EventType string

const (
	EvtJoined        EventType = "Joined"
	EvtReconnected   EventType = "Reconnected"
	EvtLeft          EventType = "Left"
	EvtDraftStarted  EventType = "DraftStarted"
	EvtPlayerPicked  EventType = "PlayerPicked"
	EvtPlayerRemoved EventType = "PlayerRemoved"
	EvtTurnAdvanced  EventType = "TurnAdvanced"
	EvtDraftEnded    EventType = "DraftEnded"
)

type Event struct {
	Type     EventType
	Username string
	ConnID   string
	PlayerID string
}

// Apply runs one command against the room state. On error the returned state
// is the input unchanged; no partial mutation survives a failed validation.
// On success every mutated slice or map is copied first, so snapshots taken
// of an earlier state never change underneath their holder.
// The caller owns serialization: Apply assumes it is the only writer.
func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s

	switch cmd.Type {
	case CmdJoin:
		// Same username rejoining is a reconnect: swap the connection,
		// keep roster and position exactly as they were.
		if i := indexByUsername(s, cmd.Username); i >= 0 {
			newState.Participants = slices.Clone(s.Participants)
			newState.Participants[i].ConnID = cmd.ConnID
			newState.Participants[i].Connected = true
			if cmd.Team != "" {
				newState.Participants[i].Team = cmd.Team
			}
			return []Event{{Type: EvtReconnected, Username: cmd.Username, ConnID: cmd.ConnID}}, newState, nil
		}

		newState.Participants = append(slices.Clone(s.Participants), Participant{
			Username:  cmd.Username,
			ConnID:    cmd.ConnID,
			Team:      cmd.Team,
			Roster:    []string{},
			Connected: true,
		})
		return []Event{{Type: EvtJoined, Username: cmd.Username, ConnID: cmd.ConnID}}, newState, nil

	case CmdDisconnect:
		i := indexByConn(s, cmd.ConnID)
		if i < 0 {
			return nil, s, ErrNotInRoom
		}
		// Liveness only. The participant keeps its seat and the turn
		// pointer is untouched; a stalled drafter stalls the room.
		newState.Participants = slices.Clone(s.Participants)
		newState.Participants[i].Connected = false
		return []Event{{Type: EvtLeft, Username: s.Participants[i].Username}}, newState, nil

	case CmdStartDraft:
		if len(s.Participants) == 0 {
			return nil, s, ErrRoomNotFound
		}
		switch s.Phase {
		case PhaseDrafting:
			return nil, s, ErrAlreadyDrafting
		case PhaseEnded:
			return nil, s, ErrDraftEnded
		}
		i := indexByConn(s, cmd.ConnID)
		if i < 0 {
			return nil, s, ErrNotInRoom
		}
		if !s.Participants[i].IsAdmin {
			return nil, s, ErrNotAuthorized
		}

		newState.Phase = PhaseDrafting
		newState.TurnIndex = 0
		events := []Event{
			{Type: EvtDraftStarted},
			{Type: EvtTurnAdvanced, Username: newState.Participants[0].Username},
		}
		return events, newState, nil

	case CmdPickPlayer:
		// Validation order matters: state, then pool, then turn, then
		// capacity. First failure short-circuits with no mutation.
		switch s.Phase {
		case PhaseForming:
			return nil, s, ErrDraftNotStarted
		case PhaseEnded:
			return nil, s, ErrDraftEnded
		}
		if s.Taken[cmd.PlayerID] {
			return nil, s, ErrPlayerTaken
		}
		newState.Participants = slices.Clone(s.Participants)
		current := &newState.Participants[s.TurnIndex]
		if current.ConnID != cmd.ConnID {
			return nil, s, ErrNotYourTurn
		}
		if len(current.Roster) >= s.RosterSize {
			// Should be unreachable while the scheduler holds its
			// invariant; tolerate it as a no-op that still advances.
			return advanceEvents(&newState), newState, nil
		}

		current.Roster = append(slices.Clone(current.Roster), cmd.PlayerID)
		newState.Taken = maps.Clone(s.Taken)
		newState.Taken[cmd.PlayerID] = true
		events := []Event{{
			Type:     EvtPlayerPicked,
			Username: current.Username,
			PlayerID: cmd.PlayerID,
		}}
		return append(events, advanceEvents(&newState)...), newState, nil

	case CmdRemovePlayer:
		if s.Phase == PhaseEnded {
			return nil, s, ErrDraftEnded
		}
		i := indexByConn(s, cmd.ConnID)
		if i < 0 {
			return nil, s, ErrNotInRoom
		}
		newState.Participants = slices.Clone(s.Participants)
		p := &newState.Participants[i]
		at := slices.Index(p.Roster, cmd.PlayerID)
		if at < 0 {
			return nil, newState, nil
		}
		p.Roster = slices.Delete(slices.Clone(p.Roster), at, at+1)
		newState.Taken = maps.Clone(s.Taken)
		delete(newState.Taken, cmd.PlayerID)
		return []Event{{
			Type:     EvtPlayerRemoved,
			Username: p.Username,
			PlayerID: cmd.PlayerID,
		}}, newState, nil

	case CmdGrantAdmin:
		if i := indexByUsername(s, cmd.Username); i >= 0 {
			newState.Participants = slices.Clone(s.Participants)
			newState.Participants[i].IsAdmin = cmd.Grant
		}
		return nil, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// advanceEvents moves the turn pointer and reports either the new turn or
// the end of the draft, mutating state in place.
func advanceEvents(s *State) []Event {
	next, ended := advance(*s)
	if ended {
		s.Phase = PhaseEnded
		return []Event{{Type: EvtDraftEnded}}
	}
	s.TurnIndex = next
	return []Event{{Type: EvtTurnAdvanced, Username: s.Participants[next].Username}}
}

func indexByUsername(s State, username string) int {
	return slices.IndexFunc(s.Participants, func(p Participant) bool {
		return p.Username == username
	})
}

func indexByConn(s State, connID string) int {
	return slices.IndexFunc(s.Participants, func(p Participant) bool {
		return p.ConnID == connID
	})
}
