package types

import (
	"sort"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
)

type ClientMessage struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Team     string `json:"team,omitempty"`
	RoomID   string `json:"room_id,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
	Text     string `json:"text,omitempty"`
}

type ServerMessage struct {
	Type     string        `json:"type"`
	Username string        `json:"username,omitempty"`
	ConnID   string        `json:"conn_id,omitempty"`
	PlayerID string        `json:"player_id,omitempty"`
	Text     string        `json:"text,omitempty"`
	Version  int           `json:"version,omitempty"`
	Room     *RoomSnapshot `json:"room,omitempty"`
	Code     string        `json:"code,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type RoomSnapshot struct {
	ID           string            `json:"id"`
	Phase        string            `json:"phase"`
	TurnIndex    int               `json:"turn_index"`
	Taken        []string          `json:"taken"`
	Participants []ParticipantInfo `json:"participants"`
}

type ParticipantInfo struct {
	Username  string   `json:"username"`
	ConnID    string   `json:"conn_id"`
	Team      string   `json:"team,omitempty"`
	Roster    []string `json:"roster"`
	Connected bool     `json:"connected"`
	IsAdmin   bool     `json:"is_admin"`
}

// NewRoomSnapshot flattens engine state into the wire shape sent on the
// "connected" event. Taken is sorted so snapshots are stable across sends.
func NewRoomSnapshot(id string, s engine.State) *RoomSnapshot {
	snap := &RoomSnapshot{
		ID:           id,
		Phase:        string(s.Phase),
		TurnIndex:    s.TurnIndex,
		Taken:        make([]string, 0, len(s.Taken)),
		Participants: make([]ParticipantInfo, 0, len(s.Participants)),
	}
	for playerID := range s.Taken {
		snap.Taken = append(snap.Taken, playerID)
	}
	sort.Strings(snap.Taken)

	for _, p := range s.Participants {
		roster := make([]string, len(p.Roster))
		copy(roster, p.Roster)
		snap.Participants = append(snap.Participants, ParticipantInfo{
			Username:  p.Username,
			ConnID:    p.ConnID,
			Team:      p.Team,
			Roster:    roster,
			Connected: p.Connected,
			IsAdmin:   p.IsAdmin,
		})
	}
	return snap
}
