package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ESDN83/enocean-mqtt-core/internal/eep"
)

// setupTestDB creates an in-memory SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// A fresh pool connection would see an empty in-memory database
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE devices (
			address          INTEGER PRIMARY KEY,
			name             TEXT    NOT NULL UNIQUE,
			rorg             INTEGER NOT NULL,
			func             INTEGER NOT NULL,
			type             INTEGER NOT NULL,
			sender           INTEGER,
			state            TEXT    NOT NULL DEFAULT '{}',
			state_updated_at TEXT,
			created_at       TEXT    NOT NULL,
			updated_at       TEXT    NOT NULL
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

func testDevice(address uint32, name string) *Device {
	now := time.Now().UTC()
	return &Device{
		Address:   address,
		Name:      name,
		Profile:   eep.ProfileID{RORG: 0xA5, Func: 0x02, Type: 0x05},
		State:     make(map[string]FieldState),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	sender := uint32(0x01234567)
	original := testDevice(0xFFBD7480, "office-sensor")
	original.Sender = &sender
	original.State["TMP"] = FieldState{Raw: 100, Number: 11.37, Unit: "C", UpdatedAt: time.Now().UTC()}

	if err := repo.Create(ctx, original); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByAddress(ctx, 0xFFBD7480)
	if err != nil {
		t.Fatalf("GetByAddress() error = %v", err)
	}

	if got.Name != "office-sensor" {
		t.Errorf("Name = %q, want office-sensor", got.Name)
	}
	if got.Profile.String() != "A5-02-05" {
		t.Errorf("Profile = %s, want A5-02-05", got.Profile)
	}
	if got.Sender == nil || *got.Sender != sender {
		t.Errorf("Sender = %v, want %#x", got.Sender, sender)
	}
	if got.State["TMP"].Raw != 100 {
		t.Errorf("State[TMP].Raw = %d, want 100", got.State["TMP"].Raw)
	}
}

func TestSQLiteRepository_GetMissing(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetByAddress(context.Background(), 0x00000001)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByAddress(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_DuplicateKeys(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice(0xFFBD7480, "office-sensor")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Create(ctx, testDevice(0xFFBD7480, "another-name")); !errors.Is(err, ErrDuplicateAddress) {
		t.Errorf("Create(same address) error = %v, want ErrDuplicateAddress", err)
	}
	if err := repo.Create(ctx, testDevice(0x01234567, "office-sensor")); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Create(same name) error = %v, want ErrDuplicateName", err)
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for _, d := range []*Device{
		testDevice(0x00000002, "zeta-sensor"),
		testDevice(0x00000001, "alpha-sensor"),
	} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create(%s) error = %v", d.Name, err)
		}
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("List() len = %d, want 2", len(devices))
	}
	if devices[0].Name != "alpha-sensor" || devices[1].Name != "zeta-sensor" {
		t.Errorf("List() order = [%s %s], want name order", devices[0].Name, devices[1].Name)
	}
}

func TestSQLiteRepository_UpdateState(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice(0xFFBD7480, "office-sensor")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	now := time.Now().UTC()
	state := map[string]FieldState{
		"TMP": {Raw: 200, Number: 42.75, Unit: "C", UpdatedAt: now},
	}
	if err := repo.UpdateState(ctx, 0xFFBD7480, state, now); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	got, err := repo.GetByAddress(ctx, 0xFFBD7480)
	if err != nil {
		t.Fatalf("GetByAddress() error = %v", err)
	}
	if got.State["TMP"].Raw != 200 {
		t.Errorf("State[TMP].Raw = %d, want 200", got.State["TMP"].Raw)
	}
	if got.StateUpdatedAt == nil {
		t.Error("StateUpdatedAt not set")
	}

	if err := repo.UpdateState(ctx, 0x1, state, now); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateState(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice(0xFFBD7480, "office-sensor")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Delete(ctx, 0xFFBD7480); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByAddress(ctx, 0xFFBD7480); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByAddress(deleted) error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.Delete(ctx, 0xFFBD7480); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_Rename(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	original := testDevice(0xFFBD7480, "office-sensor")
	if err := repo.Create(ctx, original); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	original.Name = "hallway-sensor"
	if err := repo.Update(ctx, original); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByAddress(ctx, 0xFFBD7480)
	if err != nil {
		t.Fatalf("GetByAddress() error = %v", err)
	}
	if got.Name != "hallway-sensor" {
		t.Errorf("Name = %q, want hallway-sensor", got.Name)
	}
}
