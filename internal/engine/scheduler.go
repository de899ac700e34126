package engine

// advance finds the next participant who can still pick, scanning circularly
// from the slot after TurnIndex. The scan is bounded by an explicit step
// counter so it terminates in at most one full circuit even when every
// roster is at capacity; in that case the draft is over.
func advance(s State) (int, bool) {
	n := len(s.Participants)
	if n == 0 {
		return s.TurnIndex, true
	}
	idx := s.TurnIndex
	for steps := 0; steps < n; steps++ {
		idx = (idx + 1) % n
		if eligible(s, idx) {
			return idx, false
		}
	}
	return s.TurnIndex, true
}

// eligible reports whether the participant at i may take a turn: a seat with
// no team binding is a placeholder and is skipped, as is a full roster.
func eligible(s State, i int) bool {
	p := s.Participants[i]
	return p.Team != "" && len(p.Roster) < s.RosterSize
}

// CurrentTurn returns the identity whose turn it is.
func CurrentTurn(s State) (string, error) {
	if len(s.Participants) == 0 {
		return "", ErrRoomNotFound
	}
	return s.Participants[s.TurnIndex].Username, nil
}
