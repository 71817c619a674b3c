package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lob_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Setting is a key-value row for run metadata.
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Storage is the instrument registry (SQLite, pure Go).
type Storage struct {
	db *gorm.DB
}

// NewStorage opens or creates the database at dbPath.
// An empty path resolves to the user config dir.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		var err error
		if dbPath, err = defaultDBPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Instrument{}, &Setting{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

func defaultDBPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "lob_go", "data", "lob.db"), nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Instrument Operations
// ======================================================================================

// UpsertInstrument creates or updates an instrument.
func (s *Storage) UpsertInstrument(in *domain.Instrument) error {
	return s.db.Save(in).Error
}

// GetInstrument returns nil, nil when symbol is unknown.
func (s *Storage) GetInstrument(symbol string) (*domain.Instrument, error) {
	var in domain.Instrument
	err := s.db.First(&in, "symbol = ?", symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// ListInstruments returns instruments ordered by symbol.
func (s *Storage) ListInstruments(activeOnly bool) ([]domain.Instrument, error) {
	var out []domain.Instrument
	q := s.db.Order("symbol")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&out).Error
	return out, err
}

// SetActive toggles whether an instrument is tracked.
func (s *Storage) SetActive(symbol string, active bool) error {
	res := s.db.Model(&domain.Instrument{}).Where("symbol = ?", symbol).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", symbol, domain.ErrInvalidSymbol)
	}
	return nil
}

// DeleteInstrument removes an instrument.
func (s *Storage) DeleteInstrument(symbol string) error {
	return s.db.Where("symbol = ?", symbol).Delete(&domain.Instrument{}).Error
}

// SyncInstruments makes ins the active set: each is upserted as active and
// every other stored instrument is deactivated.
func (s *Storage) SyncInstruments(ins []domain.Instrument) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		symbols := make([]string, 0, len(ins))
		for i := range ins {
			ins[i].IsActive = true
			if err := tx.Save(&ins[i]).Error; err != nil {
				return err
			}
			symbols = append(symbols, ins[i].Symbol)
		}
		q := tx.Model(&domain.Instrument{})
		if len(symbols) > 0 {
			q = q.Where("symbol NOT IN ?", symbols)
		} else {
			q = q.Where("1 = 1")
		}
		return q.Update("is_active", false).Error
	})
}

// ======================================================================================
// Setting Operations
// ======================================================================================

// SaveSetting stores one key.
func (s *Storage) SaveSetting(key, value string) error {
	return s.db.Save(&Setting{Key: key, Value: value}).Error
}

// LoadSettings loads all settings as a map.
func (s *Storage) LoadSettings() (map[string]string, error) {
	var rows []Setting
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string, len(rows))
	for _, r := range rows {
		result[r.Key] = r.Value
	}
	return result, nil
}
