package engine

import (
	"errors"
	"testing"
)

func TestAdvance(t *testing.T) {
	cases := []struct {
		name      string
		setup     func() State
		wantIdx   int
		wantEnded bool
	}{
		{
			name: "next seat eligible",
			setup: func() State {
				return draftingState(2, seat("A", "c1"), seat("B", "c2"))
			},
			wantIdx: 1,
		},
		{
			name: "skips full roster",
			setup: func() State {
				s := draftingState(1, seat("A", "c1"), seat("B", "c2"), seat("C", "c3"))
				s.Participants[1].Roster = []string{"p1"}
				s.Taken["p1"] = true
				return s
			},
			wantIdx: 2,
		},
		{
			name: "skips seat without team binding",
			setup: func() State {
				s := draftingState(2, seat("A", "c1"), seat("B", "c2"), seat("C", "c3"))
				s.Participants[1].Team = ""
				return s
			},
			wantIdx: 2,
		},
		{
			name: "wraps around to earlier seat",
			setup: func() State {
				s := draftingState(1, seat("A", "c1"), seat("B", "c2"), seat("C", "c3"))
				s.TurnIndex = 2
				s.Participants[2].Roster = []string{"p1"}
				return s
			},
			wantIdx: 0,
		},
		{
			name: "solo drafter keeps the turn until full",
			setup: func() State {
				s := draftingState(3, seat("A", "c1"))
				s.Participants[0].Roster = []string{"p1"}
				return s
			},
			wantIdx: 0,
		},
		{
			name: "every roster full ends the draft",
			setup: func() State {
				s := draftingState(1, seat("A", "c1"), seat("B", "c2"))
				s.Participants[0].Roster = []string{"p1"}
				s.Participants[1].Roster = []string{"p2"}
				return s
			},
			wantEnded: true,
		},
		{
			name: "no eligible seat at all ends the draft",
			setup: func() State {
				s := draftingState(2, seat("A", "c1"), seat("B", "c2"))
				s.Participants[0].Team = ""
				s.Participants[1].Team = ""
				return s
			},
			wantEnded: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			idx, ended := advance(tc.setup())
			if ended != tc.wantEnded {
				t.Fatalf("ended = %v, want %v", ended, tc.wantEnded)
			}
			if !ended && idx != tc.wantIdx {
				t.Fatalf("idx = %d, want %d", idx, tc.wantIdx)
			}
		})
	}
}

// The scan must visit each seat at most once, regardless of room size.
func TestAdvanceIsBounded(t *testing.T) {
	s := NewState(1)
	s.Phase = PhaseDrafting
	for i := 0; i < 64; i++ {
		p := seat("u", "c")
		p.Roster = []string{"x"}
		s.Participants = append(s.Participants, p)
	}

	// All full: must report ended rather than spin.
	if _, ended := advance(s); !ended {
		t.Fatalf("expected ended")
	}
}

func TestCurrentTurn(t *testing.T) {
	s := draftingState(2, seat("A", "c1"), seat("B", "c2"))
	s.TurnIndex = 1

	got, err := CurrentTurn(s)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "B" {
		t.Fatalf("got %q, want B", got)
	}

	_, err = CurrentTurn(NewState(2))
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("want ErrRoomNotFound, got %v", err)
	}
}
