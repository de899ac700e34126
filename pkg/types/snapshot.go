package types

// connected (room snapshot):
//   version: number // bumps on every committed room mutation
//   room:
//     id: string
//     phase: "forming" | "drafting" | "ended"
//     turn_index: number
//     taken: string[] // sorted player ids across all rosters
//     participants: Participant[] // join order = draft order
//
// Participant:
//   username: string
//   conn_id: string // current connection, replaced on reconnect
//   team: string // empty = no draft seat, scheduler skips it
//   roster: string[]
//   connected: boolean
//   is_admin: boolean
