package watchlist

import (
	"errors"
	"testing"

	"twse_alert_backend/models"
	"twse_alert_backend/services/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kv, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewStore(kv)
}

func priceAboveRule(threshold string) models.AlertRule {
	return models.AlertRule{
		Kind:      models.RulePriceAbove,
		Threshold: dec(threshold),
		Enabled:   true,
	}
}

func TestAddRejectsEmptyRuleSet(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add("2330", "台積電", nil); !errors.Is(err, ErrEmptyRuleSet) {
		t.Fatalf("expected ErrEmptyRuleSet, got %v", err)
	}
}

func TestAddRejectsUnknownRuleKind(t *testing.T) {
	s := newTestStore(t)
	rules := []models.AlertRule{{Kind: "volumeAbove", Threshold: dec("1"), Enabled: true}}
	if _, err := s.Add("2330", "台積電", rules); !errors.Is(err, ErrInvalidRuleKind) {
		t.Fatalf("expected ErrInvalidRuleKind, got %v", err)
	}
}

func TestAddAllowsDuplicateInstrument(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add("2330", "台積電", []models.AlertRule{priceAboveRule("500")}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := s.Add("2330", "台積電", []models.AlertRule{priceAboveRule("600")}); err != nil {
		t.Fatalf("duplicate instrument must be permitted: %v", err)
	}
	if got := len(s.GetAll()); got != 2 {
		t.Fatalf("expected 2 items, got %d", got)
	}
}

func TestAddAssignsStableRuleIDs(t *testing.T) {
	s := newTestStore(t)
	item, err := s.Add("2330", "台積電", []models.AlertRule{priceAboveRule("500")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if item.ID == "" {
		t.Fatal("item must get an id")
	}
	if item.Rules[0].ID == "" {
		t.Fatal("rules must get stable ids")
	}
	if item.CreatedAt.IsZero() {
		t.Fatal("created_at must be set")
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	item, err := s.Add("2330", "台積電", []models.AlertRule{priceAboveRule("500"), priceAboveRule("550")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// First rule fired today.
	if err := s.MarkTriggered(item.ID, []string{item.Rules[0].ID}); err != nil {
		t.Fatalf("mark: %v", err)
	}

	// Edit: keep rule 0 (new threshold), drop rule 1, add a new rule.
	newRules := []models.AlertRule{
		{ID: item.Rules[0].ID, Kind: models.RulePriceAbove, Threshold: dec("520"), Enabled: true},
		priceAboveRule("580"),
	}
	updated, err := s.Update(item.ID, newRules)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.Get(item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got.Rules))
	}
	if !got.Rules[0].Threshold.Equal(dec("520")) {
		t.Errorf("threshold not replaced: %s", got.Rules[0].Threshold)
	}

	// Retained rule keeps its fired state even though the threshold changed.
	if !got.Triggered[item.Rules[0].ID] {
		t.Error("retained rule must keep its fired state across an edit")
	}
	// Dropped rule's ledger entry must be pruned, new rule starts unfired.
	if got.Triggered[item.Rules[1].ID] {
		t.Error("removed rule must not linger in the ledger")
	}
	if got.Triggered[updated.Rules[1].ID] {
		t.Error("new rule must start unfired")
	}
}

func TestUpdateUnknownID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Update("missing", []models.AlertRule{priceAboveRule("1")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	item, err := s.Add("2330", "台積電", []models.AlertRule{priceAboveRule("500")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Remove(item.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(item.ID); err != nil {
		t.Fatalf("removing an unknown id must not be an error: %v", err)
	}
	if err := s.Remove("never-existed"); err != nil {
		t.Fatalf("removing an unknown id must not be an error: %v", err)
	}
}

func TestGetAllInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	for _, code := range []string{"2330", "2317", "0050"} {
		if _, err := s.Add(code, "", []models.AlertRule{priceAboveRule("1")}); err != nil {
			t.Fatalf("add %s: %v", code, err)
		}
	}
	items := s.GetAll()
	want := []string{"2330", "2317", "0050"}
	for i, item := range items {
		if item.Code != want[i] {
			t.Fatalf("insertion order lost: got %s at %d, want %s", item.Code, i, want[i])
		}
	}
}

func TestResetTriggeredIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	item, err := s.Add("2330", "台積電", []models.AlertRule{priceAboveRule("500")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.MarkTriggered(item.ID, []string{item.Rules[0].ID}); err != nil {
		t.Fatalf("mark: %v", err)
	}

	if err := s.ResetTriggered(); err != nil {
		t.Fatalf("first reset: %v", err)
	}
	if err := s.ResetTriggered(); err != nil {
		t.Fatalf("second reset: %v", err)
	}

	got, _ := s.Get(item.ID)
	if len(got.Triggered) != 0 {
		t.Fatalf("ledger must be empty after reset, got %v", got.Triggered)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	kv, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	s := NewStore(kv)
	item, err := s.Add("2330", "台積電", []models.AlertRule{priceAboveRule("500")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.MarkTriggered(item.ID, []string{item.Rules[0].ID}); err != nil {
		t.Fatalf("mark: %v", err)
	}

	// A fresh store over the same backend sees the committed state.
	reloaded := NewStore(kv)
	got, err := reloaded.Get(item.ID)
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if got.Code != "2330" || !got.Triggered[item.Rules[0].ID] {
		t.Fatalf("reloaded item lost state: %+v", got)
	}
}

// failingKV commits the first n saves and then fails every write.
type failingKV struct {
	inner     storage.KeyValueStore
	remaining int
}

func (f *failingKV) Load(key string) ([]byte, error) {
	return f.inner.Load(key)
}

func (f *failingKV) Save(key string, value []byte) error {
	if f.remaining <= 0 {
		return errors.New("disk full")
	}
	f.remaining--
	return f.inner.Save(key, value)
}

func (f *failingKV) Close() error { return nil }

func TestFailedCommitLeavesStateConsistent(t *testing.T) {
	inner, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	kv := &failingKV{inner: inner, remaining: 1}
	s := NewStore(kv)

	item, err := s.Add("2330", "台積電", []models.AlertRule{priceAboveRule("500")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// Store is now read-only at the persistence layer.
	if _, err := s.Add("2317", "鴻海", []models.AlertRule{priceAboveRule("100")}); err == nil {
		t.Fatal("expected persistence error")
	}
	if err := s.MarkTriggered(item.ID, []string{item.Rules[0].ID}); err == nil {
		t.Fatal("expected persistence error")
	}

	// Readers observe the last committed state only.
	items := s.GetAll()
	if len(items) != 1 {
		t.Fatalf("failed add must not be visible, got %d items", len(items))
	}
	if len(items[0].Triggered) != 0 {
		t.Fatalf("failed trigger write must not be visible: %v", items[0].Triggered)
	}
}
