package eep

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// OverrideRepository persists override generations.
//
// Implementations must keep version counters monotonic per profile: a
// version number is never reused, even after the record that carried it
// has been deleted.
type OverrideRepository interface {
	// NextVersion allocates the next version number for a profile.
	NextVersion(ctx context.Context, id ProfileID) (int64, error)

	// Save stores an override record.
	Save(ctx context.Context, ov Override) error

	// Delete removes a single override generation.
	Delete(ctx context.Context, id ProfileID, version int64) error

	// List returns the retained generations for one profile, newest first.
	List(ctx context.Context, id ProfileID) ([]Override, error)

	// ListAll returns retained generations for every profile, newest first.
	ListAll(ctx context.Context) (map[ProfileID][]Override, error)
}

// SQLiteOverrideRepository implements OverrideRepository backed by SQLite.
type SQLiteOverrideRepository struct {
	db *sql.DB
}

// NewSQLiteOverrideRepository creates a repository using the given database.
func NewSQLiteOverrideRepository(db *sql.DB) *SQLiteOverrideRepository {
	return &SQLiteOverrideRepository{db: db}
}

// NextVersion increments and returns the proposal counter for a profile.
//
// The counter lives in eep_override_counters and only ever grows, which
// keeps versions monotonic across rotation and restart.
func (r *SQLiteOverrideRepository) NextVersion(ctx context.Context, id ProfileID) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO eep_override_counters (rorg, func, type, proposed)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(rorg, func, type) DO UPDATE SET proposed = proposed + 1
		RETURNING proposed
	`, id.RORG, id.Func, id.Type).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("incrementing override counter for %s: %w", id, err)
	}
	return version, nil
}

// Save stores an override record.
func (r *SQLiteOverrideRepository) Save(ctx context.Context, ov Override) error {
	fields, err := json.Marshal(ov.Fields)
	if err != nil {
		return fmt.Errorf("marshalling override fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO eep_overrides (rorg, func, type, version, fields, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		ov.Profile.RORG,
		ov.Profile.Func,
		ov.Profile.Type,
		ov.Version,
		string(fields),
		ov.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting override %s v%d: %w", ov.Profile, ov.Version, err)
	}
	return nil
}

// Delete removes a single override generation.
func (r *SQLiteOverrideRepository) Delete(ctx context.Context, id ProfileID, version int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM eep_overrides
		WHERE rorg = ? AND func = ? AND type = ? AND version = ?
	`, id.RORG, id.Func, id.Type, version)
	if err != nil {
		return fmt.Errorf("deleting override %s v%d: %w", id, version, err)
	}
	return nil
}

// List returns the retained generations for one profile, newest first.
func (r *SQLiteOverrideRepository) List(ctx context.Context, id ProfileID) ([]Override, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT rorg, func, type, version, fields, created_at
		FROM eep_overrides
		WHERE rorg = ? AND func = ? AND type = ?
		ORDER BY version DESC
	`, id.RORG, id.Func, id.Type)
	if err != nil {
		return nil, fmt.Errorf("querying overrides for %s: %w", id, err)
	}
	defer rows.Close()

	return scanOverrides(rows)
}

// ListAll returns retained generations for every profile, newest first.
func (r *SQLiteOverrideRepository) ListAll(ctx context.Context) (map[ProfileID][]Override, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT rorg, func, type, version, fields, created_at
		FROM eep_overrides
		ORDER BY rorg, func, type, version DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying overrides: %w", err)
	}
	defer rows.Close()

	all, err := scanOverrides(rows)
	if err != nil {
		return nil, err
	}

	grouped := make(map[ProfileID][]Override)
	for _, ov := range all {
		grouped[ov.Profile] = append(grouped[ov.Profile], ov)
	}
	return grouped, nil
}

// scanOverrides reads override rows into records.
func scanOverrides(rows *sql.Rows) ([]Override, error) {
	var out []Override
	for rows.Next() {
		var (
			ov        Override
			rorg      int
			fn        int
			ty        int
			fields    string
			createdAt string
		)
		if err := rows.Scan(&rorg, &fn, &ty, &ov.Version, &fields, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning override row: %w", err)
		}

		ov.Profile = ProfileID{RORG: byte(rorg), Func: byte(fn), Type: byte(ty)}

		if err := json.Unmarshal([]byte(fields), &ov.Fields); err != nil {
			return nil, fmt.Errorf("unmarshalling override fields for %s v%d: %w", ov.Profile, ov.Version, err)
		}

		// Timestamp format is controlled by Save
		ov.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

		out = append(out, ov)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating override rows: %w", err)
	}
	return out, nil
}
