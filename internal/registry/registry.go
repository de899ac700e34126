package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/room"
)

type Msg interface{ isRegistryMsg() }

// EnsureRoom returns the room for ID, creating it on first use. Rooms are
// process-lifetime: nothing here ever deletes one implicitly.
type EnsureRoom struct {
	ID    string
	Reply chan *room.Room
}

// GetRoom returns the room for ID, or nil if no one ever joined it.
type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

type ShutdownAll struct{}

func (EnsureRoom) isRegistryMsg()  {}
func (GetRoom) isRegistryMsg()     {}
func (ShutdownAll) isRegistryMsg() {}

// Registry owns the id → room table behind a single goroutine, so room
// creation races collapse into one winner.
type Registry struct {
	inbox      chan Msg
	rooms      map[string]*room.Room
	rosterSize int
	deps       room.Deps
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(parent context.Context, rosterSize int, deps room.Deps) *Registry {
	ctx, cancel := context.WithCancel(parent)
	reg := &Registry{
		inbox:      make(chan Msg, 64),
		rooms:      make(map[string]*room.Room),
		rosterSize: rosterSize,
		deps:       deps,
		logger:     deps.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	go reg.loop()
	return reg
}

func (reg *Registry) Inbox() chan<- Msg { return reg.inbox }

// Ensure is a convenience wrapper around the EnsureRoom message.
func (reg *Registry) Ensure(id string) *room.Room {
	reply := make(chan *room.Room, 1)
	reg.inbox <- EnsureRoom{ID: id, Reply: reply}
	return <-reply
}

// Get is a convenience wrapper around the GetRoom message.
func (reg *Registry) Get(id string) *room.Room {
	reply := make(chan *room.Room, 1)
	reg.inbox <- GetRoom{ID: id, Reply: reply}
	return <-reply
}

func (reg *Registry) loop() {
	for {
		select {
		case <-reg.ctx.Done():
			return

		case m := <-reg.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				rm := reg.rooms[msg.ID]
				if rm == nil {
					rm = room.NewRoom(reg.ctx, msg.ID, reg.rosterSize, reg.deps)
					reg.rooms[msg.ID] = rm
					reg.logger.Info("room created", zap.String("room", msg.ID))
				}
				msg.Reply <- rm

			case GetRoom:
				msg.Reply <- reg.rooms[msg.ID] // may be nil

			case ShutdownAll:
				for _, rm := range reg.rooms {
					rm.Inbox() <- room.Shutdown{}
				}
				clear(reg.rooms)
				reg.cancel()
			}
		}
	}
}
