package types

// Client -> Server
// signIn:
//   username: string
//   team: string // optional team binding; no team = spectator seat
//
// joinRoom:
//   room_id: string // league code
//
// getTurn: {}
//
// startDraft: {} // commissioner only; league status must be "drafting"
//
// pickPlayer:
//   player_id: string
//
// removePlayer:
//   player_id: string // self-service correction, own roster only
//
// submitDraft: {} // commissioner only; persists final rosters
//
// sendMessage:
//   text: string

// Server -> Client
// signedIn:     username
// notSignedIn:  {} // joinRoom before signIn
// connected:    version + full room snapshot (sent to the joiner)
// reconnect:    username + conn_id (sent to the rejoiner itself)
// userJoined:   username + conn_id (new connection ref, not the stale one)
// userLeft:     username
// draftStarted: {}
// currentTurn:  username
// playerPicked: username + player_id
// playerRemoved: username + player_id
// draftEnded:   {}
// draftSubmitted: {}
// receiveMessage: username + text
//
// error:
//   code: string // room_not_found | draft_not_started | draft_ended |
//                // player_taken | not_your_turn | not_authorized |
//                // not_in_room | upstream_unavailable | ...
//   error: string
