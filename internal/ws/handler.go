package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/registry"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/room"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/types"
)

const writeTimeout = 3 * time.Second

// connections is a liveness gauge, logged on connect/disconnect.
var connections atomic.Int64

// Handler upgrades a connection and runs its session: a sign-in handshake,
// then room-scoped events forwarded to the joined room's inbox. One writer
// goroutine drains the outbox; the room owns closing it once joined.
func Handler(reg *registry.Registry, origins []string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: origins,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		outbox := make(chan types.ServerMessage, 16)
		log := logger.With(zap.String("conn", connID))
		log.Info("connection opened", zap.Int64("connections", connections.Add(1)))
		defer func() {
			log.Info("connection closed", zap.Int64("connections", connections.Add(-1)))
		}()

		writeCtx, writeCancel := context.WithCancel(context.Background())
		defer writeCancel()
		go func() {
			for msg := range outbox {
				payload, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		var (
			username string
			team     string
			joined   *room.Room
		)
		defer func() {
			if joined != nil {
				// Room flips the participant to disconnected and
				// closes the outbox.
				joined.Inbox() <- room.Leave{ConnID: connID}
			} else {
				close(outbox)
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				send(outbox, types.ServerMessage{Type: "error", Code: "bad_json", Error: "bad json"})
				continue
			}

			switch cm.Type {
			case "signIn":
				if cm.Username == "" {
					send(outbox, types.ServerMessage{Type: "error", Code: "bad_request", Error: "username required"})
					continue
				}
				username = cm.Username
				team = cm.Team
				log.Info("signed in", zap.String("username", username))
				send(outbox, types.ServerMessage{Type: "signedIn", Username: username})

			case "joinRoom":
				if username == "" {
					send(outbox, types.ServerMessage{Type: "notSignedIn"})
					continue
				}
				if cm.RoomID == "" {
					send(outbox, types.ServerMessage{Type: "error", Code: "bad_request", Error: "room_id required"})
					continue
				}
				if joined != nil {
					send(outbox, types.ServerMessage{Type: "error", Code: "already_joined", Error: "already in a room"})
					continue
				}
				joined = reg.Ensure(cm.RoomID)
				joined.Inbox() <- room.Join{
					Username: username,
					ConnID:   connID,
					Team:     team,
					Outbox:   outbox,
				}

			case "getTurn":
				if !requireRoom(joined, outbox) {
					continue
				}
				joined.Inbox() <- room.GetTurn{ConnID: connID}

			case "startDraft":
				if !requireRoom(joined, outbox) {
					continue
				}
				joined.Inbox() <- room.StartDraft{ConnID: connID}

			case "pickPlayer":
				if !requireRoom(joined, outbox) {
					continue
				}
				joined.Inbox() <- room.FromClient{ConnID: connID, Cmd: engine.Command{
					Type:     engine.CmdPickPlayer,
					ConnID:   connID,
					PlayerID: cm.PlayerID,
				}}

			case "removePlayer":
				if !requireRoom(joined, outbox) {
					continue
				}
				joined.Inbox() <- room.FromClient{ConnID: connID, Cmd: engine.Command{
					Type:     engine.CmdRemovePlayer,
					ConnID:   connID,
					PlayerID: cm.PlayerID,
				}}

			case "submitDraft":
				if !requireRoom(joined, outbox) {
					continue
				}
				joined.Inbox() <- room.SubmitDraft{ConnID: connID}

			case "sendMessage":
				if !requireRoom(joined, outbox) {
					continue
				}
				joined.Inbox() <- room.Chat{Username: username, Text: cm.Text}

			default:
				send(outbox, types.ServerMessage{Type: "error", Code: "unknown_type", Error: "unknown type"})
			}
		}
	}
}

func requireRoom(joined *room.Room, outbox chan types.ServerMessage) bool {
	if joined == nil {
		send(outbox, types.ServerMessage{Type: "error", Code: "not_in_room", Error: "join a room first"})
		return false
	}
	return true
}

// send tolerates an outbox the room has already closed (slow-client drop
// races the reader loop).
func send(outbox chan types.ServerMessage, msg types.ServerMessage) {
	defer func() { _ = recover() }()
	select {
	case outbox <- msg:
	default:
	}
}
