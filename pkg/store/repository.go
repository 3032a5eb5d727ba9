// Package store persists parsed tournaments in a SQLite database through gorm.
// Every write is an idempotent upsert keyed by the natural identity of the row:
// tournament date, group number, player name, roster slot and unordered pair.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/logger"
	"github.com/bttc/roundrobin/pkg/types"
)

// MaxParseErrorLength bounds the stored parse_error text
const MaxParseErrorLength = 500

// Repository provides data access for imported tournaments
type Repository struct {
	db     *gorm.DB
	config config.StoreConfig
	logger interfaces.Logger
}

// NewRepository opens (and migrates) the database at cfg.Path
func NewRepository(cfg config.StoreConfig, log interfaces.Logger) (*Repository, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if !inMemory(cfg.Path) {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, errors.NewDatabaseError("failed to create database directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.NewDatabaseError("failed to connect to database", err)
	}

	// SQLite allows a single writer; importer workers queue on the one connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.NewDatabaseError("failed to access connection pool", err)
	}
	sqlDB.SetMaxOpenConns(1)

	repo := &Repository{db: db, config: cfg, logger: log}
	if err := repo.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.NewDatabaseError("failed to migrate database", err)
	}
	return repo, nil
}

func inMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	return r.db.AutoMigrate(
		&Tournament{},
		&Group{},
		&Player{},
		&RosterEntry{},
		&Match{},
	)
}

// runCache remembers rows resolved during one transaction. It is discarded
// with the transaction so a rollback never leaves stale IDs behind.
type runCache struct {
	players map[string]string
}

func newRunCache() *runCache {
	return &runCache{players: make(map[string]string)}
}

// SaveDocument upserts a parsed document in one transaction and returns the
// tournament ID. The tournament is marked successful and its parse error cleared.
func (r *Repository) SaveDocument(ctx context.Context, doc *types.ParsedDocument, sourceURL string) (string, error) {
	if doc == nil || !doc.Tournament.HasDate() {
		return "", errors.NewMissingDateError(sourceURL)
	}

	var tournamentID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cache := newRunCache()

		t := Tournament{
			Name:          doc.Tournament.Name,
			Date:          dayOf(*doc.Tournament.Date),
			SourceURL:     sourceURL,
			ParsingStatus: string(types.ParsingStatusSuccess),
		}
		if t.Name == "" {
			t.Name = types.DefaultTournamentName(t.Date)
		}
		id, err := upsertTournament(tx, t, true)
		if err != nil {
			return err
		}
		tournamentID = id

		for _, g := range doc.Groups {
			if err := saveGroup(tx, cache, tournamentID, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.GetEngineError(err) != nil {
			return "", err
		}
		return "", errors.NewDatabaseError("failed to save tournament", err)
	}

	r.logger.Debug("saved tournament", map[string]interface{}{
		"tournament_id": tournamentID,
		"groups":        len(doc.Groups),
		"matches":       doc.MatchCount(),
	})
	return tournamentID, nil
}

// RecordFailure stores the status of an unsuccessful import. Existing groups
// of the tournament are left untouched.
func (r *Repository) RecordFailure(ctx context.Context, record types.Tournament) (string, error) {
	if record.Date == nil || record.Date.IsZero() {
		return "", errors.NewMissingDateError(record.SourceURL)
	}
	status := record.ParsingStatus
	if status == "" {
		status = types.ParsingStatusParsingFailed
	}

	t := Tournament{
		Name:          record.DisplayName,
		Date:          dayOf(*record.Date),
		SourceURL:     record.SourceURL,
		ParsingStatus: string(status),
		ParseError:    truncate(record.ParseError, MaxParseErrorLength),
	}
	if t.Name == "" {
		t.Name = types.DefaultTournamentName(t.Date)
	}

	id, err := upsertTournament(r.db.WithContext(ctx), t, false)
	if err != nil {
		return "", errors.NewDatabaseError("failed to record tournament status", err)
	}
	return id, nil
}

// IsImported reports whether a tournament with at least one group exists for date
func (r *Repository) IsImported(ctx context.Context, date time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&Group{}).
		Joins("JOIN tournaments ON tournaments.id = round_robin_groups.tournament_id").
		Where("tournaments.date = ?", dayOf(date)).
		Count(&n).Error
	if err != nil {
		return false, errors.NewDatabaseError("failed to check tournament", err)
	}
	return n > 0, nil
}

// ListUnsuccessful returns tournaments whose status is not success, oldest first
func (r *Repository) ListUnsuccessful(ctx context.Context) ([]types.Tournament, error) {
	var rows []Tournament
	err := r.db.WithContext(ctx).
		Where("parsing_status <> ?", string(types.ParsingStatusSuccess)).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list unsuccessful tournaments", err)
	}

	out := make([]types.Tournament, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Record())
	}
	return out, nil
}

// GetTournament loads the tournament of date with its groups, roster and matches
func (r *Repository) GetTournament(ctx context.Context, date time.Time) (*Tournament, error) {
	var t Tournament
	err := r.db.WithContext(ctx).
		Preload("Groups", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		Preload("Groups.Entries", func(db *gorm.DB) *gorm.DB { return db.Order("player_number ASC") }).
		Preload("Groups.Entries.Player").
		Preload("Groups.Matches", func(db *gorm.DB) *gorm.DB {
			return db.Order("player1_number ASC, player2_number ASC")
		}).
		Where("date = ?", dayOf(date)).
		First(&t).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NewNotFoundError(fmt.Sprintf("tournament %s", date.Format(time.DateOnly)))
	}
	if err != nil {
		return nil, errors.NewDatabaseError("failed to load tournament", err)
	}
	return &t, nil
}

// Close releases the underlying connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// upsertTournament finds the row for t.Date and updates it, or creates it.
// Name and source are only overwritten when set; success rows always
// overwrite the name.
func upsertTournament(tx *gorm.DB, t Tournament, success bool) (string, error) {
	var existing Tournament
	err := tx.Where("date = ?", t.Date).First(&existing).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		if err := tx.Create(&t).Error; err != nil {
			return "", err
		}
		return t.ID, nil
	}
	if err != nil {
		return "", err
	}

	updates := map[string]interface{}{
		"parsing_status": t.ParsingStatus,
		"parse_error":    t.ParseError,
		"updated_at":     time.Now(),
	}
	if t.SourceURL != "" {
		updates["source_url"] = t.SourceURL
	}
	if success && t.Name != "" {
		updates["name"] = t.Name
	}
	if err := tx.Model(&existing).Updates(updates).Error; err != nil {
		return "", err
	}
	return existing.ID, nil
}

func saveGroup(tx *gorm.DB, cache *runCache, tournamentID string, g types.Group) error {
	group := Group{TournamentID: tournamentID, Number: g.Number, Name: g.Label()}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tournament_id"}, {Name: "number"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&group).Error
	if err != nil {
		return err
	}
	// On conflict the generated ID is not the stored one.
	var stored Group
	if err := tx.Where("tournament_id = ? AND number = ?", tournamentID, g.Number).First(&stored).Error; err != nil {
		return err
	}
	group.ID = stored.ID

	playerIDs := make(map[int]string, len(g.Players))
	for _, p := range g.Players {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return errors.NewValidationError(fmt.Sprintf("Group %s: Player is missing name", g.Label()))
		}
		playerID, err := cache.player(tx, name)
		if err != nil {
			return err
		}
		playerIDs[p.PlayerNumber] = playerID

		entry := RosterEntry{
			TournamentID:    tournamentID,
			GroupID:         group.ID,
			PlayerNumber:    p.PlayerNumber,
			PlayerID:        playerID,
			RatingPre:       p.RatingPre,
			RatingPost:      p.RatingPost,
			RatingChange:    p.RatingChange,
			MatchesWon:      p.MatchesWon,
			GamesWon:        p.GamesWon,
			BonusPoints:     p.BonusPoints,
			ChangeWithBonus: p.ChangeWithBonus,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "group_id"}, {Name: "player_number"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"player_id", "rating_pre", "rating_post", "rating_change",
				"matches_won", "games_won", "bonus_points", "change_with_bonus", "updated_at",
			}),
		}).Create(&entry).Error
		if err != nil {
			return err
		}
	}

	for _, m := range g.Matches {
		pair := m.Pair()
		p1, p2 := m.Player1Score, m.Player2Score
		if pair.Low != m.Player1Number {
			p1, p2 = p2, p1
		}
		id1, ok1 := playerIDs[pair.Low]
		id2, ok2 := playerIDs[pair.High]
		if !ok1 || !ok2 {
			return errors.NewValidationError(fmt.Sprintf(
				"Group %s: Match %d-%d references a player outside the roster", g.Label(), pair.Low, pair.High))
		}

		match := Match{
			TournamentID:  tournamentID,
			GroupID:       group.ID,
			Player1Number: pair.Low,
			Player2Number: pair.High,
			Player1ID:     id1,
			Player2ID:     id2,
			Player1Score:  p1,
			Player2Score:  p2,
			WinnerID:      winner(id1, id2, p1, p2),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "group_id"}, {Name: "player1_number"}, {Name: "player2_number"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"player1_id", "player2_id", "player1_score", "player2_score", "winner_id", "updated_at",
			}),
		}).Create(&match).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// player resolves a player ID by exact name, creating the row when missing
func (c *runCache) player(tx *gorm.DB, name string) (string, error) {
	if id, ok := c.players[name]; ok {
		return id, nil
	}
	player := Player{Name: name}
	if err := tx.Where("name = ?", name).FirstOrCreate(&player).Error; err != nil {
		return "", err
	}
	c.players[name] = player.ID
	return player.ID, nil
}

func winner(id1, id2 string, score1, score2 int) *string {
	switch {
	case score1 > score2:
		return &id1
	case score2 > score1:
		return &id2
	default:
		return nil
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

var _ interfaces.TournamentStore = (*Repository)(nil)
