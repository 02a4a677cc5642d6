package eep

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupOverrideDB creates an in-memory SQLite database with the override
// tables from the initial schema.
func setupOverrideDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// A fresh pool connection would see an empty in-memory database
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE eep_overrides (
			rorg       INTEGER NOT NULL,
			func       INTEGER NOT NULL,
			type       INTEGER NOT NULL,
			version    INTEGER NOT NULL,
			fields     TEXT    NOT NULL,
			created_at TEXT    NOT NULL,
			PRIMARY KEY (rorg, func, type, version)
		);
		CREATE TABLE eep_override_counters (
			rorg     INTEGER NOT NULL,
			func     INTEGER NOT NULL,
			type     INTEGER NOT NULL,
			proposed INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (rorg, func, type)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// setupEngine wires a store, SQLite repository and engine for tests.
func setupEngine(t *testing.T) (*Engine, *sql.DB) {
	t.Helper()
	store := mustParse(t)
	db := setupOverrideDB(t)
	return NewEngine(store, NewSQLiteOverrideRepository(db)), db
}

var tempID = ProfileID{RORG: 0xA5, Func: 0x02, Type: 0x05}

// narrowTemp is an override that narrows TMP to a 0..40C scale.
func narrowTemp() []DataField {
	return []DataField{
		{
			Shortcut: "TMP",
			Offset:   8,
			Size:     8,
			Unit:     "C",
			RangeMin: 0,
			RangeMax: 255,
			ScaleMin: 0,
			ScaleMax: 40,
		},
	}
}

// ─── Propose Tests ───────────────────────────────────────────────────────────

func TestEngine_ProposeUnknownBase(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()

	unknown := ProfileID{RORG: 0xA5, Func: 0x7F, Type: 0x01}
	_, err := engine.Propose(ctx, unknown, narrowTemp())
	if !errors.Is(err, ErrUnknownBaseProfile) {
		t.Fatalf("Propose(unknown) error = %v, want ErrUnknownBaseProfile", err)
	}

	// No record, and no version burned
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM eep_overrides").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 0 {
		t.Errorf("override rows = %d, want 0", count)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM eep_override_counters").Scan(&count); err != nil {
		t.Fatalf("counter query: %v", err)
	}
	if count != 0 {
		t.Errorf("counter rows = %d, want 0", count)
	}
}

func TestEngine_ProposeInvalidFields(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	bad := []DataField{{Shortcut: "TMP", Offset: 28, Size: 8, RangeMin: 0, RangeMax: 255}}
	_, err := engine.Propose(ctx, tempID, bad)
	if !errors.Is(err, ErrMalformedDictionary) {
		t.Fatalf("Propose(invalid) error = %v, want ErrMalformedDictionary", err)
	}

	if got := engine.History(tempID); len(got) != 0 {
		t.Errorf("History() len = %d after rejected proposal, want 0", len(got))
	}
}

func TestEngine_ProposeAssignsVersions(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		ov, err := engine.Propose(ctx, tempID, narrowTemp())
		if err != nil {
			t.Fatalf("Propose() #%d error = %v", want, err)
		}
		if ov.Version != want {
			t.Errorf("Propose() #%d version = %d, want %d", want, ov.Version, want)
		}
	}
}

// ─── Rotation Tests ──────────────────────────────────────────────────────────

func TestEngine_RotationRetainsThreeNewest(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := engine.Propose(ctx, tempID, narrowTemp()); err != nil {
			t.Fatalf("Propose() #%d error = %v", i+1, err)
		}
	}

	history := engine.History(tempID)
	if len(history) != 3 {
		t.Fatalf("History() len = %d, want 3", len(history))
	}

	// Newest first, versions keep climbing past the rotation
	wantVersions := []int64{5, 4, 3}
	for i, ov := range history {
		if ov.Version != wantVersions[i] {
			t.Errorf("History()[%d].Version = %d, want %d", i, ov.Version, wantVersions[i])
		}
	}

	// Rotated generations are pruned from the repository too
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM eep_overrides").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 3 {
		t.Errorf("persisted override rows = %d, want 3", count)
	}
}

func TestEngine_HistoryIsolation(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	if _, err := engine.Propose(ctx, tempID, narrowTemp()); err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	history := engine.History(tempID)
	history[0].Fields[0].Shortcut = "MUTATED"

	if engine.History(tempID)[0].Fields[0].Shortcut != "TMP" {
		t.Error("mutating a History() result leaked into the engine")
	}
}

// ─── Effective Merge Tests ───────────────────────────────────────────────────

func TestEngine_EffectiveWithoutOverride(t *testing.T) {
	engine, _ := setupEngine(t)

	effective, err := engine.Effective(tempID)
	if err != nil {
		t.Fatalf("Effective() error = %v", err)
	}

	if len(effective.Fields) != 2 {
		t.Errorf("Effective() field count = %d, want 2", len(effective.Fields))
	}
	if effective.Fields[0].ScaleMin != -20 {
		t.Errorf("Effective() TMP scale min = %v, want -20 (base)", effective.Fields[0].ScaleMin)
	}
}

func TestEngine_EffectiveUnknownProfile(t *testing.T) {
	engine, _ := setupEngine(t)

	_, err := engine.Effective(ProfileID{RORG: 0xA5, Func: 0x7F, Type: 0x01})
	if !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("Effective(unknown) error = %v, want ErrUnknownProfile", err)
	}
}

func TestEngine_EffectiveMergesNewestOverBase(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	if _, err := engine.Propose(ctx, tempID, narrowTemp()); err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	effective, err := engine.Effective(tempID)
	if err != nil {
		t.Fatalf("Effective() error = %v", err)
	}

	tmp, ok := effective.Field("TMP")
	if !ok {
		t.Fatal("Effective() lost the TMP field")
	}
	if tmp.ScaleMin != 0 || tmp.ScaleMax != 40 {
		t.Errorf("TMP scale = [%v,%v], want [0,40] from override", tmp.ScaleMin, tmp.ScaleMax)
	}

	// Unmentioned base fields pass through untouched
	if _, ok := effective.Field("LRNB"); !ok {
		t.Error("Effective() dropped the unmentioned LRNB base field")
	}

	// The base profile in the store is untouched
	base, _ := engine.store.Get(tempID)
	if baseTmp, _ := base.Field("TMP"); baseTmp.ScaleMin != -20 {
		t.Errorf("base TMP scale min = %v, want -20", baseTmp.ScaleMin)
	}
}

func TestEngine_EffectiveAppendsNewFields(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	fields := []DataField{
		{
			Shortcut: "BATT",
			Offset:   0,
			Size:     8,
			Unit:     "%",
			RangeMin: 0,
			RangeMax: 255,
			ScaleMin: 0,
			ScaleMax: 100,
		},
	}
	if _, err := engine.Propose(ctx, tempID, fields); err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	effective, err := engine.Effective(tempID)
	if err != nil {
		t.Fatalf("Effective() error = %v", err)
	}

	if len(effective.Fields) != 3 {
		t.Fatalf("Effective() field count = %d, want 3", len(effective.Fields))
	}
	if _, ok := effective.Field("BATT"); !ok {
		t.Error("Effective() missing appended BATT field")
	}
}

// ─── Revert Tests ────────────────────────────────────────────────────────────

func TestEngine_Revert(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	// v1 narrows the scale, v2 widens it
	if _, err := engine.Propose(ctx, tempID, narrowTemp()); err != nil {
		t.Fatalf("Propose(v1) error = %v", err)
	}
	wide := narrowTemp()
	wide[0].ScaleMax = 100
	if _, err := engine.Propose(ctx, tempID, wide); err != nil {
		t.Fatalf("Propose(v2) error = %v", err)
	}

	reverted, err := engine.Revert(ctx, tempID, 1)
	if err != nil {
		t.Fatalf("Revert() error = %v", err)
	}

	if reverted.Version != 3 {
		t.Errorf("Revert() version = %d, want fresh version 3", reverted.Version)
	}
	if reverted.Fields[0].ScaleMax != 40 {
		t.Errorf("Revert() scale max = %v, want 40 from v1", reverted.Fields[0].ScaleMax)
	}

	// The reverted generation is now effective
	effective, _ := engine.Effective(tempID)
	if tmp, _ := effective.Field("TMP"); tmp.ScaleMax != 40 {
		t.Errorf("Effective() scale max = %v after revert, want 40", tmp.ScaleMax)
	}
}

func TestEngine_RevertUnknownVersion(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	if _, err := engine.Propose(ctx, tempID, narrowTemp()); err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	_, err := engine.Revert(ctx, tempID, 99)
	if !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("Revert(99) error = %v, want ErrUnknownVersion", err)
	}
}

// ─── Persistence Tests ───────────────────────────────────────────────────────

func TestEngine_RefreshRestoresState(t *testing.T) {
	store := mustParse(t)
	db := setupOverrideDB(t)
	repo := NewSQLiteOverrideRepository(db)
	ctx := context.Background()

	first := NewEngine(store, repo)
	for i := 0; i < 4; i++ {
		if _, err := first.Propose(ctx, tempID, narrowTemp()); err != nil {
			t.Fatalf("Propose() #%d error = %v", i+1, err)
		}
	}

	// Simulate a restart: a new engine over the same repository
	second := NewEngine(store, repo)
	if err := second.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	history := second.History(tempID)
	if len(history) != 3 {
		t.Fatalf("History() after restart len = %d, want 3", len(history))
	}
	if history[0].Version != 4 {
		t.Errorf("newest version after restart = %d, want 4", history[0].Version)
	}

	// Version counter survives the restart
	ov, err := second.Propose(ctx, tempID, narrowTemp())
	if err != nil {
		t.Fatalf("Propose() after restart error = %v", err)
	}
	if ov.Version != 5 {
		t.Errorf("version after restart = %d, want 5", ov.Version)
	}
}
