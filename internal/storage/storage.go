// Package storage provides the settings store: typed preferences, the seen
// history and the last cycle report over a SQLite or Redis key/value backend.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rewired-gh/signalwatch/internal/config"
	"github.com/rewired-gh/signalwatch/internal/dedup"
	"github.com/rewired-gh/signalwatch/internal/models"
)

// Backend is a durable string key/value store. Set must be durable when it
// returns; each key is read and written atomically.
type Backend interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// StorageError reports a failed read or write against the backend.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ErrUnknownKey is returned by Set for keys that are not user preferences.
var ErrUnknownKey = errors.New("unknown setting")

// Store exposes typed access to preferences and history.
type Store struct {
	backend         Backend
	defaults        models.Preferences
	historyCapacity int
}

// New wraps a backend. defaultServer is returned for the server preference
// until one is stored.
func New(backend Backend, defaultServer string, historyCapacity int) *Store {
	if historyCapacity <= 0 {
		historyCapacity = dedup.DefaultCapacity
	}
	return &Store{
		backend:         backend,
		defaults:        models.DefaultPreferences(defaultServer),
		historyCapacity: historyCapacity,
	}
}

// Open builds a Store from the storage configuration.
func Open(ctx context.Context, cfg config.StorageConfig, defaultServer string, historyCapacity int) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Driver {
	case "", "sqlite":
		backend, err = OpenSQLite(cfg.DBPath)
	case "redis":
		backend, err = OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return New(backend, defaultServer, historyCapacity), nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Defaults returns the built-in preferences.
func (s *Store) Defaults() models.Preferences {
	return s.defaults
}

// Get returns the raw stored value for key, or its default when unset.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return s.defaultValue(key), &StorageError{Op: "get", Key: key, Err: err}
	}
	if !found {
		return s.defaultValue(key), nil
	}
	return v, nil
}

// Set validates and stores a user preference.
func (s *Store) Set(ctx context.Context, key, value string) error {
	normalized, err := normalizePreference(key, value)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, key, normalized); err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Preferences reads every preference. Keys that fail to load or parse keep
// their default value; the first storage failure is returned alongside.
func (s *Store) Preferences(ctx context.Context) (models.Preferences, error) {
	p := s.defaults
	var firstErr error
	note := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if v, ok, err := s.lookup(ctx, models.KeyServer); err != nil {
		note(err)
	} else if ok && v != "" {
		p.ServerURL = v
	}
	if b, ok, err := s.lookupBool(ctx, models.KeyDark); err != nil {
		note(err)
	} else if ok {
		p.DarkMode = b
	}
	if b, ok, err := s.lookupBool(ctx, models.KeyNotifs); err != nil {
		note(err)
	} else if ok {
		p.NotificationsEnabled = b
	}
	if b, ok, err := s.lookupBool(ctx, models.KeyStrongOnly); err != nil {
		note(err)
	} else if ok {
		p.StrongSignalsOnly = b
	}
	if v, ok, err := s.lookup(ctx, models.KeyMinScore); err != nil {
		note(err)
	} else if ok {
		if f, perr := strconv.ParseFloat(v, 64); perr == nil && f >= 0 && f <= 100 {
			p.MinScore = f
		}
	}

	return p, firstErr
}

// LoadHistory returns the persisted seen history. A storage failure returns
// an empty history together with the error.
func (s *Store) LoadHistory(ctx context.Context) (*dedup.History, error) {
	v, ok, err := s.lookup(ctx, models.KeySeenHashes)
	if err != nil {
		return dedup.NewHistory(s.historyCapacity), err
	}
	if !ok || v == "" {
		return dedup.NewHistory(s.historyCapacity), nil
	}
	var entries []dedup.Fingerprint
	if err := json.Unmarshal([]byte(v), &entries); err != nil {
		return dedup.NewHistory(s.historyCapacity), &StorageError{Op: "decode", Key: models.KeySeenHashes, Err: err}
	}
	return dedup.NewHistory(s.historyCapacity, entries...), nil
}

// SaveHistory persists h, keeping at most the newest capacity entries.
func (s *Store) SaveHistory(ctx context.Context, h *dedup.History) error {
	entries := h.Entries()
	if len(entries) > s.historyCapacity {
		entries = entries[len(entries)-s.historyCapacity:]
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return &StorageError{Op: "encode", Key: models.KeySeenHashes, Err: err}
	}
	if err := s.backend.Set(ctx, models.KeySeenHashes, string(raw)); err != nil {
		return &StorageError{Op: "set", Key: models.KeySeenHashes, Err: err}
	}
	return nil
}

// LastCycle returns the most recent cycle report, or nil if none was stored.
func (s *Store) LastCycle(ctx context.Context) (*models.CycleReport, error) {
	v, ok, err := s.lookup(ctx, models.KeyLastCycle)
	if err != nil || !ok {
		return nil, err
	}
	var r models.CycleReport
	if err := json.Unmarshal([]byte(v), &r); err != nil {
		return nil, &StorageError{Op: "decode", Key: models.KeyLastCycle, Err: err}
	}
	return &r, nil
}

// SaveLastCycle stores the report of the cycle that just finished.
func (s *Store) SaveLastCycle(ctx context.Context, r models.CycleReport) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return &StorageError{Op: "encode", Key: models.KeyLastCycle, Err: err}
	}
	if err := s.backend.Set(ctx, models.KeyLastCycle, string(raw)); err != nil {
		return &StorageError{Op: "set", Key: models.KeyLastCycle, Err: err}
	}
	return nil
}

func (s *Store) lookup(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", false, &StorageError{Op: "get", Key: key, Err: err}
	}
	return v, ok, nil
}

func (s *Store) lookupBool(ctx context.Context, key string) (bool, bool, error) {
	v, ok, err := s.lookup(ctx, key)
	if err != nil || !ok {
		return false, false, err
	}
	b, perr := strconv.ParseBool(v)
	if perr != nil {
		return false, false, nil
	}
	return b, true, nil
}

func (s *Store) defaultValue(key string) string {
	switch key {
	case models.KeyServer:
		return s.defaults.ServerURL
	case models.KeyDark:
		return strconv.FormatBool(s.defaults.DarkMode)
	case models.KeyNotifs:
		return strconv.FormatBool(s.defaults.NotificationsEnabled)
	case models.KeyStrongOnly:
		return strconv.FormatBool(s.defaults.StrongSignalsOnly)
	case models.KeyMinScore:
		return strconv.FormatFloat(s.defaults.MinScore, 'f', -1, 64)
	default:
		return ""
	}
}

func normalizePreference(key, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch key {
	case models.KeyServer:
		if err := config.ValidateServerURL(value); err != nil {
			return "", fmt.Errorf("invalid server: %w", err)
		}
		return strings.TrimRight(value, "/"), nil
	case models.KeyDark, models.KeyNotifs, models.KeyStrongOnly:
		b, err := parseToggle(value)
		if err != nil {
			return "", fmt.Errorf("invalid %s: %w", key, err)
		}
		return strconv.FormatBool(b), nil
	case models.KeyMinScore:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", fmt.Errorf("invalid min_score: %w", err)
		}
		if math.IsNaN(f) || f < 0 || f > 100 {
			return "", fmt.Errorf("min_score must be between 0 and 100")
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}

func parseToggle(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(v)
}
