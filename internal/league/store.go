package league

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("league not found")

// Store is the postgres-backed league record keeper. It serves three roles
// for the draft rooms: status gate for starting a draft, admin directory,
// and persistence sink for submitted rosters.
type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&League{}, &Member{}, &DraftResult{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateLeague(ctx context.Context, l *League) error {
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *Store) GetLeague(ctx context.Context, code string) (*League, error) {
	var l League
	err := s.db.WithContext(ctx).Preload("Members").First(&l, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) UpdateStatus(ctx context.Context, code string, status Status) error {
	res := s.db.WithContext(ctx).Model(&League{}).Where("code = ?", code).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, m *Member) error {
	return s.db.WithContext(ctx).Create(m).Error
}

// LeagueStatus implements room.Directory.
func (s *Store) LeagueStatus(ctx context.Context, code string) (string, error) {
	var l League
	err := s.db.WithContext(ctx).Select("status").First(&l, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(l.Status), nil
}

// IsAdmin implements room.Directory: commissioners administer their league's
// draft room.
func (s *Store) IsAdmin(ctx context.Context, code, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Member{}).
		Where("league_code = ? AND username = ? AND commissioner", code, username).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveDraft implements room.Sink: replaces any prior results for the league
// and marks it complete, atomically.
func (s *Store) SaveDraft(ctx context.Context, code string, rosters map[string][]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&DraftResult{}, "league_code = ?", code).Error; err != nil {
			return err
		}
		for username, roster := range rosters {
			for slot, playerID := range roster {
				row := DraftResult{
					LeagueCode: code,
					Username:   username,
					PlayerID:   playerID,
					Slot:       slot,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
		return tx.Model(&League{}).Where("code = ?", code).Update("status", StatusComplete).Error
	})
}
