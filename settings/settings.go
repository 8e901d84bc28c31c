// Package settings holds the user preferences that seed new trips and sync.
package settings

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/internal/utils"
	"github.com/jrsteele09/korebog/internal/validation"
	"github.com/jrsteele09/korebog/kv"
	"github.com/rs/zerolog/log"
)

// DefaultRate is the reimbursement rate in DKK per km.
const DefaultRate = 3.79

type Settings struct {
	DefaultRate      float64 `json:"default_rate" validate:"finite,gt=0"`
	DefaultOrigin    string  `json:"default_origin" validate:"max=500"`
	SpreadsheetID    string  `json:"spreadsheet_id" validate:"max=200"`
	WarnSixtyDayRule bool    `json:"warn_sixty_day_rule"`
	SyncAfterSave    bool    `json:"sync_after_save"`
}

func Defaults() Settings {
	return Settings{
		DefaultRate:      DefaultRate,
		WarnSixtyDayRule: true,
		SyncAfterSave:    true,
	}
}

// Patch changes only the non-nil fields.
type Patch struct {
	DefaultRate      *float64
	DefaultOrigin    *string
	SpreadsheetID    *string
	WarnSixtyDayRule *bool
	SyncAfterSave    *bool
}

func (p Patch) apply(s Settings) Settings {
	if p.DefaultRate != nil {
		s.DefaultRate = *p.DefaultRate
	}
	if p.DefaultOrigin != nil {
		s.DefaultOrigin = strings.TrimSpace(*p.DefaultOrigin)
	}
	if p.SpreadsheetID != nil {
		s.SpreadsheetID = strings.TrimSpace(*p.SpreadsheetID)
	}
	s.WarnSixtyDayRule = utils.ValueOr(p.WarnSixtyDayRule, s.WarnSixtyDayRule)
	s.SyncAfterSave = utils.ValueOr(p.SyncAfterSave, s.SyncAfterSave)
	return s
}

// Store keeps the current settings in memory and persists every change.
type Store struct {
	kv       kv.Store
	validate *validator.Validate

	mu      sync.RWMutex
	current Settings
}

// Load reads the persisted settings merged over Defaults. An unreadable blob
// is ignored and the defaults are used.
func Load(store kv.Store) (*Store, error) {
	if store == nil {
		return nil, kerrors.New("settings: kv store is required")
	}

	current := Defaults()
	raw, ok, err := store.Get(kv.KeySettings)
	if err != nil {
		return nil, kerrors.Wrapf(err, "load settings")
	}
	if ok {
		merged := Defaults()
		if err := json.Unmarshal([]byte(raw), &merged); err != nil {
			log.Warn().Err(err).Msg("ignoring unreadable settings blob")
		} else {
			current = merged
		}
	}
	return &Store{kv: store, validate: validation.New(), current: current}, nil
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates and persists the patched settings. Nothing changes on error.
func (s *Store) Update(p Patch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := p.apply(s.current)
	if err := validation.Struct(s.validate, next); err != nil {
		return s.current, err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return s.current, err
	}
	if err := s.kv.Set(kv.KeySettings, string(data)); err != nil {
		return s.current, kerrors.Wrapf(err, "save settings")
	}
	s.current = next
	return next, nil
}
