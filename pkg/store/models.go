package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bttc/roundrobin/pkg/types"
)

// Tournament is one results document, identified by its calendar date
type Tournament struct {
	ID            string    `gorm:"primaryKey;size:36"`
	Name          string    `gorm:"not null"`
	Date          time.Time `gorm:"uniqueIndex;not null"`
	SourceURL     string
	ParsingStatus string `gorm:"size:32;index;not null"`
	ParseError    string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Groups []Group `gorm:"foreignKey:TournamentID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name
func (Tournament) TableName() string { return "tournaments" }

// BeforeCreate hook for Tournament model
func (t *Tournament) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate hook for Tournament model
func (t *Tournament) BeforeUpdate(tx *gorm.DB) error {
	t.UpdatedAt = time.Now()
	return nil
}

// Record converts the row into the engine's tournament identity
func (t *Tournament) Record() types.Tournament {
	date := t.Date
	return types.Tournament{
		DisplayName:   t.Name,
		Date:          &date,
		SourceURL:     t.SourceURL,
		ParsingStatus: types.ParsingStatus(t.ParsingStatus),
		ParseError:    t.ParseError,
	}
}

// Group is one bracket of a tournament
type Group struct {
	ID           string `gorm:"primaryKey;size:36"`
	TournamentID string `gorm:"size:36;not null;uniqueIndex:idx_group_number"`
	Number       int    `gorm:"not null;uniqueIndex:idx_group_number"`
	Name         string
	CreatedAt    time.Time

	Entries []RosterEntry `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	Matches []Match       `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name
func (Group) TableName() string { return "round_robin_groups" }

// BeforeCreate hook for Group model
func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	g.CreatedAt = time.Now()
	return nil
}

// Player is a person across all tournaments, identified by exact name
type Player struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// TableName specifies the table name
func (Player) TableName() string { return "players" }

// BeforeCreate hook for Player model
func (p *Player) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now()
	return nil
}

// RosterEntry holds a player's line and statistics within one group
type RosterEntry struct {
	ID              string `gorm:"primaryKey;size:36"`
	TournamentID    string `gorm:"size:36;not null;index"`
	GroupID         string `gorm:"size:36;not null;uniqueIndex:idx_roster_slot"`
	PlayerNumber    int    `gorm:"not null;uniqueIndex:idx_roster_slot"`
	PlayerID        string `gorm:"size:36;not null;index"`
	RatingPre       *int
	RatingPost      *int
	RatingChange    *int
	MatchesWon      *int
	GamesWon        *int
	BonusPoints     *int
	ChangeWithBonus *int
	UpdatedAt       time.Time

	Player Player `gorm:"foreignKey:PlayerID"`
}

// TableName specifies the table name
func (RosterEntry) TableName() string { return "player_tournament_stats" }

// BeforeCreate hook for RosterEntry model
func (r *RosterEntry) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.UpdatedAt = time.Now()
	return nil
}

// Match is one pairwise result. Player1Number is the lower number.
type Match struct {
	ID            string `gorm:"primaryKey;size:36"`
	TournamentID  string `gorm:"size:36;not null;index"`
	GroupID       string `gorm:"size:36;not null;uniqueIndex:idx_match_pair"`
	Player1Number int    `gorm:"not null;uniqueIndex:idx_match_pair"`
	Player2Number int    `gorm:"not null;uniqueIndex:idx_match_pair"`
	Player1ID     string `gorm:"size:36;not null;index"`
	Player2ID     string `gorm:"size:36;not null;index"`
	Player1Score  int
	Player2Score  int
	WinnerID      *string `gorm:"size:36"`
	UpdatedAt     time.Time
}

// TableName specifies the table name
func (Match) TableName() string { return "matches" }

// BeforeCreate hook for Match model
func (m *Match) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.UpdatedAt = time.Now()
	return nil
}

// dayOf normalizes a timestamp to its calendar date in UTC
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
