// Package watchlist implements the watchlist alert monitoring core:
// the persisted item store, the rule evaluator, and the polling engine
// that checks live quotes against alert rules during market hours.
package watchlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"twse_alert_backend/models"
	"twse_alert_backend/services/storage"

	"github.com/google/uuid"
)

// WatchlistKey is the well-known storage key the serialized collection
// lives under.
const WatchlistKey = "watchlist"

var (
	// ErrEmptyRuleSet is returned when an item would end up with no rules.
	ErrEmptyRuleSet = errors.New("watch item requires at least one alert rule")
	// ErrNotFound is returned for lookups with an unknown item id.
	ErrNotFound = errors.New("watch item not found")
	// ErrInvalidRuleKind is returned when a rule carries an unsupported kind.
	ErrInvalidRuleKind = errors.New("unsupported alert rule kind")
)

// Store owns the durable watch item collection. All mutations commit to
// the underlying key-value store before they become visible to readers;
// a failed commit leaves the in-memory state at the last committed
// snapshot.
type Store struct {
	kv    storage.KeyValueStore
	mu    sync.RWMutex
	items []models.WatchItem
}

// NewStore loads the collection from the key-value store. A missing or
// corrupt blob logs a warning and starts with an empty watchlist rather
// than refusing to start.
func NewStore(kv storage.KeyValueStore) *Store {
	s := &Store{kv: kv}

	data, err := kv.Load(WatchlistKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			log.Printf("Watchlist load failed, starting empty: %v", err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.items); err != nil {
		log.Printf("Watchlist blob corrupt, starting empty: %v", err)
		s.items = nil
	}
	for i := range s.items {
		if s.items[i].Triggered == nil {
			s.items[i].Triggered = make(map[string]bool)
		}
	}
	return s
}

// normalizeRules validates rule kinds and assigns stable IDs to rules
// that do not carry one yet. Rules that already have an ID keep it, so
// trigger state survives edits.
func normalizeRules(rules []models.AlertRule) ([]models.AlertRule, error) {
	if len(rules) == 0 {
		return nil, ErrEmptyRuleSet
	}
	out := make([]models.AlertRule, len(rules))
	copy(out, rules)
	for i := range out {
		if !out[i].Kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRuleKind, out[i].Kind)
		}
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out, nil
}

// commit persists the given snapshot and swaps it in on success.
// Callers must hold s.mu.
func (s *Store) commit(items []models.WatchItem) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize watchlist: %w", err)
	}
	if err := s.kv.Save(WatchlistKey, data); err != nil {
		return fmt.Errorf("failed to persist watchlist: %w", err)
	}
	s.items = items
	return nil
}

// snapshot deep-copies the current collection. Callers must hold s.mu.
func (s *Store) snapshot() []models.WatchItem {
	out := make([]models.WatchItem, len(s.items))
	for i := range s.items {
		out[i] = s.items[i].Clone()
	}
	return out
}

// Add appends a new watch item. Multiple items for the same instrument
// are permitted.
func (s *Store) Add(code, name string, rules []models.AlertRule) (models.WatchItem, error) {
	normalized, err := normalizeRules(rules)
	if err != nil {
		return models.WatchItem{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := models.WatchItem{
		ID:        uuid.NewString(),
		Code:      code,
		Name:      name,
		Rules:     normalized,
		Triggered: make(map[string]bool),
		CreatedAt: time.Now(),
	}
	next := append(s.snapshot(), item)
	if err := s.commit(next); err != nil {
		return models.WatchItem{}, err
	}
	return item.Clone(), nil
}

// Update replaces the item's rule set in place. Ledger entries for rule
// IDs retained in the new set are kept; entries for removed rules are
// pruned; new rules start unfired.
func (s *Store) Update(id string, rules []models.AlertRule) (models.WatchItem, error) {
	normalized, err := normalizeRules(rules)
	if err != nil {
		return models.WatchItem{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snapshot()
	for i := range next {
		if next[i].ID != id {
			continue
		}
		next[i].Rules = normalized
		kept := make(map[string]bool, len(next[i].Triggered))
		for _, rule := range normalized {
			if next[i].Triggered[rule.ID] {
				kept[rule.ID] = true
			}
		}
		next[i].Triggered = kept
		if err := s.commit(next); err != nil {
			return models.WatchItem{}, err
		}
		return next[i].Clone(), nil
	}
	return models.WatchItem{}, ErrNotFound
}

// Remove deletes the item. Removing an unknown id is not an error.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snapshot()
	for i := range next {
		if next[i].ID == id {
			next = append(next[:i], next[i+1:]...)
			return s.commit(next)
		}
	}
	return nil
}

// Get returns a snapshot of one item.
func (s *Store) Get(id string) (models.WatchItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.items {
		if s.items[i].ID == id {
			return s.items[i].Clone(), nil
		}
	}
	return models.WatchItem{}, ErrNotFound
}

// GetAll returns snapshots of every item in insertion order.
func (s *Store) GetAll() []models.WatchItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// MarkTriggered records the given rule IDs as fired for the item and
// persists the updated ledger.
func (s *Store) MarkTriggered(id string, ruleIDs []string) error {
	if len(ruleIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snapshot()
	for i := range next {
		if next[i].ID != id {
			continue
		}
		for _, ruleID := range ruleIDs {
			next[i].Triggered[ruleID] = true
		}
		return s.commit(next)
	}
	return ErrNotFound
}

// ResetTriggered clears the trigger ledger on every item. Calling it
// twice in a row is equivalent to calling it once.
func (s *Store) ResetTriggered() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snapshot()
	changed := false
	for i := range next {
		if len(next[i].Triggered) > 0 {
			next[i].Triggered = make(map[string]bool)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.commit(next)
}
