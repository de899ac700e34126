package league

import "time"

type Status string

const (
	StatusForming  Status = "forming"
	StatusDrafting Status = "drafting"
	StatusComplete Status = "complete"
)

// League is the external record a draft room hangs off of. Code doubles as
// the room id on the websocket side.
type League struct {
	Code      string    `gorm:"primaryKey;size:6" json:"code"`
	Name      string    `gorm:"not null" json:"name"`
	Status    Status    `gorm:"not null;default:forming" json:"status"`
	CreatedAt time.Time `json:"created_at"`

	Members []Member `gorm:"foreignKey:LeagueCode" json:"members,omitempty"`
}

type Member struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	LeagueCode   string    `gorm:"not null;uniqueIndex:idx_league_member" json:"-"`
	Username     string    `gorm:"not null;uniqueIndex:idx_league_member" json:"username"`
	Commissioner bool      `json:"commissioner"`
	TeamName     string    `json:"team_name,omitempty"`
	CreatedAt    time.Time `json:"-"`
}

// DraftResult is one drafted player in a submitted draft: the persistence
// sink's row shape.
type DraftResult struct {
	ID         uint   `gorm:"primaryKey"`
	LeagueCode string `gorm:"not null;index"`
	Username   string `gorm:"not null"`
	PlayerID   string `gorm:"not null"`
	Slot       int    `gorm:"not null"`
	CreatedAt  time.Time
}
