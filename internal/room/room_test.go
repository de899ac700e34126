package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/types"
)

const wait = 500 * time.Millisecond

type fakeDirectory struct {
	mu        sync.Mutex
	status    string
	statusErr error
	admins    map[string]bool
}

func (d *fakeDirectory) LeagueStatus(ctx context.Context, code string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, d.statusErr
}

func (d *fakeDirectory) IsAdmin(ctx context.Context, code, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.admins[username], nil
}

type fakeSink struct {
	mu    sync.Mutex
	err   error
	code  string
	saved map[string][]string
}

func (s *fakeSink) SaveDraft(ctx context.Context, code string, rosters map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.code = code
	s.saved = rosters
	return nil
}

func newTestRoom(t *testing.T, rosterSize int, dir *fakeDirectory, sink *fakeSink) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRoom(ctx, "r1", rosterSize, Deps{
		Logger:    zap.NewNop(),
		Directory: dir,
		Sink:      sink,
	})
}

// recvMsg receives one message with a timeout so tests never hang.
func recvMsg(t *testing.T, ch <-chan types.ServerMessage) types.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return msg
	case <-time.After(wait):
		t.Fatalf("timed out waiting for message")
	}
	return types.ServerMessage{}
}

func recvTyped(t *testing.T, ch <-chan types.ServerMessage, want string) types.ServerMessage {
	t.Helper()
	msg := recvMsg(t, ch)
	require.Equal(t, want, msg.Type)
	return msg
}

func recvClosed(t *testing.T, ch <-chan types.ServerMessage) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if ok {
			t.Fatalf("expected closed outbox, got %+v", msg)
		}
	case <-time.After(wait):
		t.Fatalf("timed out waiting for outbox to close")
	}
}

func getView(t *testing.T, r *Room) View {
	t.Helper()
	reply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(wait):
		t.Fatalf("timed out waiting for view")
	}
	return View{}
}

// join attaches a connection and drains the snapshot (and the reconnect
// notice, when rejoining).
func join(t *testing.T, r *Room, username, connID, team string) chan types.ServerMessage {
	t.Helper()
	out := make(chan types.ServerMessage, 32)
	r.Inbox() <- Join{Username: username, ConnID: connID, Team: team, Outbox: out}
	msg := recvMsg(t, out)
	if msg.Type == "reconnect" {
		msg = recvMsg(t, out)
	}
	require.Equal(t, "connected", msg.Type)
	return out
}

// waitAdmin blocks until the async admin grant has been applied.
func waitAdmin(t *testing.T, r *Room, username string) {
	t.Helper()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		v := getView(t, r)
		for _, p := range v.State.Participants {
			if p.Username == username && p.IsAdmin {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("admin grant for %s never arrived", username)
}

// startDraft drives the gated transition and drains the draftStarted and
// currentTurn broadcasts on each given outbox.
func startDraft(t *testing.T, r *Room, connID string, outs ...chan types.ServerMessage) {
	t.Helper()
	r.Inbox() <- StartDraft{ConnID: connID}
	for _, out := range outs {
		recvTyped(t, out, "draftStarted")
		recvTyped(t, out, "currentTurn")
	}
}

func TestJoinSendsSnapshotAndNotifiesOthers(t *testing.T) {
	dir := &fakeDirectory{admins: map[string]bool{}}
	r := newTestRoom(t, 2, dir, &fakeSink{})

	outA := make(chan types.ServerMessage, 32)
	r.Inbox() <- Join{Username: "A", ConnID: "c1", Team: "t1", Outbox: outA}

	snap := recvTyped(t, outA, "connected")
	require.Equal(t, 1, snap.Version)
	require.NotNil(t, snap.Room)
	require.Equal(t, "r1", snap.Room.ID)
	require.Equal(t, string(engine.PhaseForming), snap.Room.Phase)
	require.Len(t, snap.Room.Participants, 1)
	require.Equal(t, "A", snap.Room.Participants[0].Username)

	join(t, r, "B", "c2", "t2")

	joined := recvTyped(t, outA, "userJoined")
	require.Equal(t, "B", joined.Username)
	require.Equal(t, "c2", joined.ConnID)
}

func TestReconnectPreservesRosterAndPosition(t *testing.T) {
	dir := &fakeDirectory{status: statusDrafting, admins: map[string]bool{"A": true}}
	r := newTestRoom(t, 2, dir, &fakeSink{})

	outA := join(t, r, "A", "c1", "t1")
	outB := join(t, r, "B", "c2", "t2")
	recvTyped(t, outA, "userJoined") // B arriving
	waitAdmin(t, r, "A")

	startDraft(t, r, "c1", outA, outB)

	r.Inbox() <- FromClient{ConnID: "c1", Cmd: engine.Command{
		Type: engine.CmdPickPlayer, ConnID: "c1", PlayerID: "p1",
	}}
	recvTyped(t, outA, "playerPicked")
	recvTyped(t, outA, "currentTurn")

	// Drop A's connection, then rejoin under the same identity.
	r.Inbox() <- Leave{ConnID: "c1"}
	recvClosed(t, outA)
	recvTyped(t, outB, "playerPicked")
	recvTyped(t, outB, "currentTurn")
	gone := recvTyped(t, outB, "userLeft")
	require.Equal(t, "A", gone.Username)

	outA2 := make(chan types.ServerMessage, 32)
	r.Inbox() <- Join{Username: "A", ConnID: "c9", Outbox: outA2}

	re := recvTyped(t, outA2, "reconnect")
	require.Equal(t, "A", re.Username)
	require.Equal(t, "c9", re.ConnID)

	snap := recvTyped(t, outA2, "connected")
	require.Len(t, snap.Room.Participants, 2, "reconnect must not duplicate the participant")
	a := snap.Room.Participants[0]
	require.Equal(t, []string{"p1"}, a.Roster, "reconnect must not reset progress")
	require.Equal(t, "c9", a.ConnID)
	require.True(t, a.Connected)
	require.Equal(t, 1, snap.Room.TurnIndex, "turn position unchanged by reconnect")

	rejoined := recvTyped(t, outB, "userJoined")
	require.Equal(t, "c9", rejoined.ConnID, "others must see the fresh connection ref")
}

func TestStartDraftGatedOnLeagueStatus(t *testing.T) {
	cases := []struct {
		name     string
		status   string
		err      error
		wantCode string
	}{
		{name: "league still forming", status: "forming", wantCode: "not_authorized"},
		{name: "store unavailable", err: errors.New("connection refused"), wantCode: "upstream_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := &fakeDirectory{status: tc.status, statusErr: tc.err, admins: map[string]bool{"A": true}}
			r := newTestRoom(t, 2, dir, &fakeSink{})

			outA := join(t, r, "A", "c1", "t1")
			waitAdmin(t, r, "A")

			r.Inbox() <- StartDraft{ConnID: "c1"}
			msg := recvTyped(t, outA, "error")
			require.Equal(t, tc.wantCode, msg.Code)

			v := getView(t, r)
			require.Equal(t, engine.PhaseForming, v.State.Phase, "failed gate must leave the room untouched")
		})
	}
}

func TestStartDraftRequiresAdmin(t *testing.T) {
	dir := &fakeDirectory{status: statusDrafting, admins: map[string]bool{}}
	r := newTestRoom(t, 2, dir, &fakeSink{})

	outA := join(t, r, "A", "c1", "t1")

	r.Inbox() <- StartDraft{ConnID: "c1"}
	msg := recvTyped(t, outA, "error")
	require.Equal(t, "not_authorized", msg.Code)
}

func TestPickBroadcastsInCommitOrder(t *testing.T) {
	dir := &fakeDirectory{status: statusDrafting, admins: map[string]bool{"A": true}}
	r := newTestRoom(t, 2, dir, &fakeSink{})

	outA := join(t, r, "A", "c1", "t1")
	outB := join(t, r, "B", "c2", "t2")
	recvTyped(t, outA, "userJoined")
	waitAdmin(t, r, "A")
	startDraft(t, r, "c1", outA, outB)

	r.Inbox() <- FromClient{ConnID: "c1", Cmd: engine.Command{
		Type: engine.CmdPickPlayer, ConnID: "c1", PlayerID: "p1",
	}}

	for _, out := range []chan types.ServerMessage{outA, outB} {
		picked := recvTyped(t, out, "playerPicked")
		require.Equal(t, "A", picked.Username)
		require.Equal(t, "p1", picked.PlayerID)
		turn := recvTyped(t, out, "currentTurn")
		require.Equal(t, "B", turn.Username)
	}

	v := getView(t, r)
	require.Equal(t, 1, v.State.TurnIndex)
	require.True(t, v.State.Taken["p1"])
}

// Two picks racing for the same turn: the actor serializes them, exactly one
// lands, the other is told it is no longer its turn.
func TestConcurrentPicksOnlyOneSucceeds(t *testing.T) {
	dir := &fakeDirectory{status: statusDrafting, admins: map[string]bool{"A": true}}
	r := newTestRoom(t, 2, dir, &fakeSink{})

	outA := join(t, r, "A", "c1", "t1")
	outB := join(t, r, "B", "c2", "t2")
	recvTyped(t, outA, "userJoined")
	waitAdmin(t, r, "A")
	startDraft(t, r, "c1", outA, outB)

	var wg sync.WaitGroup
	for _, playerID := range []string{"p1", "p2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Inbox() <- FromClient{ConnID: "c1", Cmd: engine.Command{
				Type: engine.CmdPickPlayer, ConnID: "c1", PlayerID: id,
			}}
		}(playerID)
	}
	wg.Wait()

	var picked, failed int
	for i := 0; i < 3; i++ {
		switch msg := recvMsg(t, outA); msg.Type {
		case "playerPicked":
			picked++
		case "currentTurn":
		case "error":
			require.Equal(t, "not_your_turn", msg.Code)
			failed++
		default:
			t.Fatalf("unexpected message %+v", msg)
		}
	}
	require.Equal(t, 1, picked, "exactly one racing pick may land")
	require.Equal(t, 1, failed)

	v := getView(t, r)
	require.Len(t, v.State.Participants[0].Roster, 1)
	require.Len(t, v.State.Taken, 1)
}

func TestSubmitDraft(t *testing.T) {
	dir := &fakeDirectory{status: statusDrafting, admins: map[string]bool{"A": true}}
	sink := &fakeSink{}
	r := newTestRoom(t, 1, dir, sink)

	outA := join(t, r, "A", "c1", "t1")
	outB := join(t, r, "B", "c2", "t2")
	recvTyped(t, outA, "userJoined")
	waitAdmin(t, r, "A")

	// Submitting before the draft starts is refused.
	r.Inbox() <- SubmitDraft{ConnID: "c1"}
	require.Equal(t, "draft_not_started", recvTyped(t, outA, "error").Code)

	startDraft(t, r, "c1", outA, outB)

	// Run the one-round draft to completion.
	r.Inbox() <- FromClient{ConnID: "c1", Cmd: engine.Command{Type: engine.CmdPickPlayer, ConnID: "c1", PlayerID: "p1"}}
	recvTyped(t, outA, "playerPicked")
	recvTyped(t, outA, "currentTurn")
	r.Inbox() <- FromClient{ConnID: "c2", Cmd: engine.Command{Type: engine.CmdPickPlayer, ConnID: "c2", PlayerID: "p2"}}
	recvTyped(t, outA, "playerPicked")
	recvTyped(t, outA, "draftEnded")

	// Only the commissioner may submit.
	r.Inbox() <- SubmitDraft{ConnID: "c2"}
	for {
		msg := recvMsg(t, outB)
		if msg.Type == "error" {
			require.Equal(t, "not_authorized", msg.Code)
			break
		}
	}

	r.Inbox() <- SubmitDraft{ConnID: "c1"}
	recvTyped(t, outA, "draftSubmitted")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, "r1", sink.code)
	require.Equal(t, map[string][]string{"A": {"p1"}, "B": {"p2"}}, sink.saved)
}

func TestSubmitDraftUpstreamFailure(t *testing.T) {
	dir := &fakeDirectory{status: statusDrafting, admins: map[string]bool{"A": true}}
	sink := &fakeSink{err: errors.New("connection refused")}
	r := newTestRoom(t, 1, dir, sink)

	outA := join(t, r, "A", "c1", "t1")
	waitAdmin(t, r, "A")
	startDraft(t, r, "c1", outA)

	r.Inbox() <- SubmitDraft{ConnID: "c1"}
	require.Equal(t, "upstream_unavailable", recvTyped(t, outA, "error").Code)
}

func TestGetTurnRepliesToRequesterOnly(t *testing.T) {
	dir := &fakeDirectory{status: statusDrafting, admins: map[string]bool{"A": true}}
	r := newTestRoom(t, 2, dir, &fakeSink{})

	outA := join(t, r, "A", "c1", "t1")
	outB := join(t, r, "B", "c2", "t2")
	recvTyped(t, outA, "userJoined")

	r.Inbox() <- GetTurn{ConnID: "c2"}
	turn := recvTyped(t, outB, "currentTurn")
	require.Equal(t, "A", turn.Username)

	select {
	case msg := <-outA:
		t.Fatalf("A should not hear B's getTurn, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChatReachesWholeRoom(t *testing.T) {
	dir := &fakeDirectory{admins: map[string]bool{}}
	r := newTestRoom(t, 2, dir, &fakeSink{})

	outA := join(t, r, "A", "c1", "t1")
	outB := join(t, r, "B", "c2", "t2")
	recvTyped(t, outA, "userJoined")

	r.Inbox() <- Chat{Username: "A", Text: "who wants p1?"}
	for _, out := range []chan types.ServerMessage{outA, outB} {
		msg := recvTyped(t, out, "receiveMessage")
		require.Equal(t, "A", msg.Username)
		require.Equal(t, "who wants p1?", msg.Text)
	}
}

// A View handed out of the room goroutine must stay stable while the loop
// keeps committing: it may share nothing mutable with live state.
func TestViewIsImmuneToLaterCommits(t *testing.T) {
	dir := &fakeDirectory{status: statusDrafting, admins: map[string]bool{"A": true}}
	r := newTestRoom(t, 2, dir, &fakeSink{})

	outA := join(t, r, "A", "c1", "t1")
	outB := join(t, r, "B", "c2", "t2")
	recvTyped(t, outA, "userJoined")
	waitAdmin(t, r, "A")
	startDraft(t, r, "c1", outA, outB)

	before := getView(t, r)
	require.Empty(t, before.State.Taken)
	require.Empty(t, before.State.Participants[0].Roster)

	r.Inbox() <- FromClient{ConnID: "c1", Cmd: engine.Command{
		Type: engine.CmdPickPlayer, ConnID: "c1", PlayerID: "p1",
	}}
	recvTyped(t, outA, "playerPicked")
	recvTyped(t, outA, "currentTurn")

	after := getView(t, r)
	require.True(t, after.State.Taken["p1"])
	require.Equal(t, []string{"p1"}, after.State.Participants[0].Roster)

	require.False(t, before.State.Taken["p1"], "commit leaked into an earlier view")
	require.Empty(t, before.State.Participants[0].Roster, "commit leaked into an earlier view")
}

func TestClientsDoesNotBlockAfterShutdown(t *testing.T) {
	dir := &fakeDirectory{admins: map[string]bool{}}
	r := newTestRoom(t, 2, dir, &fakeSink{})

	r.Inbox() <- Shutdown{}

	done := make(chan int, 1)
	go func() { done <- r.Clients() }()
	select {
	case n := <-done:
		require.Equal(t, 0, n)
	case <-time.After(wait):
		t.Fatalf("Clients blocked against a shut-down room")
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	dir := &fakeDirectory{admins: map[string]bool{}}
	r := newTestRoom(t, 2, dir, &fakeSink{})

	// Buffer of one: the join snapshot fills it, the next broadcast drops
	// the client instead of stalling the room.
	out := make(chan types.ServerMessage, 1)
	r.Inbox() <- Join{Username: "A", ConnID: "c1", Team: "t1", Outbox: out}
	_ = join(t, r, "B", "c2", "t2")

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if getView(t, r).NumClients == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("slow client was not dropped")
}
