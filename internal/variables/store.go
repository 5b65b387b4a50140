// Package variables holds the machine variables published by the FAST
// communicators (firmware versions, board models). Values can optionally be
// persisted to SQLite so they survive restarts.
package variables

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// MachineVariable is one persisted variable
type MachineVariable struct {
	Name      string    `gorm:"primaryKey;size:128" json:"name"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Listener is notified after a variable changes
type Listener func(name, value string)

// Store is an in-memory variable store with optional SQLite persistence
type Store struct {
	mu        sync.RWMutex
	values    map[string]MachineVariable
	listeners []Listener
	db        *gorm.DB
	logger    *zap.Logger
}

// NewStore creates a memory-only store
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		values: make(map[string]MachineVariable),
		logger: logger.With(zap.String("component", "variables")),
	}
}

// OpenStore creates a store backed by the SQLite file at path and loads the
// values saved by a previous run.
func OpenStore(path string, log *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create variable store directory: %w", err)
		}
	}

	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open variable store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := configureSQLite(sqlDB); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&MachineVariable{}); err != nil {
		return nil, fmt.Errorf("failed to migrate variable store: %w", err)
	}

	s := NewStore(log)
	s.db = db

	var saved []MachineVariable
	if err := db.Find(&saved).Error; err != nil {
		return nil, fmt.Errorf("failed to load variables: %w", err)
	}
	for _, v := range saved {
		s.values[v.Name] = v
	}

	s.logger.Info("Variable store opened",
		zap.String("path", path),
		zap.Int("loaded", len(saved)),
	)
	return s, nil
}

// configureSQLite applies the pragmas used for a small single-writer database
func configureSQLite(sqlDB *sql.DB) error {
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// SetMachineVar sets a variable, persists it when a database is attached and
// notifies listeners. Persistence failures are logged, never returned.
func (s *Store) SetMachineVar(name, value string) {
	v := MachineVariable{Name: name, Value: value, UpdatedAt: time.Now()}

	s.mu.Lock()
	s.values[name] = v
	listeners := append([]Listener(nil), s.listeners...)
	db := s.db
	s.mu.Unlock()

	if db != nil {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&v).Error
		if err != nil {
			s.logger.Error("Failed to persist machine variable",
				zap.String("name", name),
				zap.Error(err),
			)
		}
	}

	s.logger.Debug("Machine variable set",
		zap.String("name", name),
		zap.String("value", value),
	)

	for _, l := range listeners {
		l(name, value)
	}
}

// Get returns a variable value
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[name]
	return v.Value, ok
}

// List returns all variables ordered by name
func (s *Store) List() []MachineVariable {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MachineVariable, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OnChange registers a listener
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Close closes the database, if any
func (s *Store) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
