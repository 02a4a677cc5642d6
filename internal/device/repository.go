package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ESDN83/enocean-mqtt-core/internal/eep"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByAddress retrieves a device by its radio address.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByAddress(ctx context.Context, address uint32) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDuplicateAddress or ErrDuplicateName on key collisions.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device by address.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, address uint32) error

	// UpdateState replaces only the state snapshot of a device.
	// This is optimised for frequent updates from the telegram pipeline.
	UpdateState(ctx context.Context, address uint32, state map[string]FieldState, updatedAt time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `address, name, rorg, func, type, sender,
		state, state_updated_at, created_at, updated_at`

// GetByAddress retrieves a device by its radio address.
func (r *SQLiteRepository) GetByAddress(ctx context.Context, address uint32) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE address = ?`, int64(address))

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by address: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	stateJSON, err := json.Marshal(device.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (address, name, rorg, func, type, sender,
			state, state_updated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(device.Address),
		device.Name,
		device.Profile.RORG,
		device.Profile.Func,
		device.Profile.Type,
		nullableSender(device.Sender),
		string(stateJSON),
		nullableTime(device.StateUpdatedAt),
		device.CreatedAt.UTC().Format(time.RFC3339Nano),
		device.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return classifyConstraint(err, device)
	}
	return nil
}

// Update modifies an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	stateJSON, err := json.Marshal(device.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET name = ?, rorg = ?, func = ?, type = ?, sender = ?,
			state = ?, state_updated_at = ?, updated_at = ?
		WHERE address = ?`,
		device.Name,
		device.Profile.RORG,
		device.Profile.Func,
		device.Profile.Type,
		nullableSender(device.Sender),
		string(stateJSON),
		nullableTime(device.StateUpdatedAt),
		time.Now().UTC().Format(time.RFC3339Nano),
		int64(device.Address),
	)
	if err != nil {
		return classifyConstraint(err, device)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device by address.
func (r *SQLiteRepository) Delete(ctx context.Context, address uint32) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM devices WHERE address = ?`, int64(address))
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// UpdateState replaces only the state snapshot of a device.
func (r *SQLiteRepository) UpdateState(ctx context.Context, address uint32, state map[string]FieldState, updatedAt time.Time) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET state = ?, state_updated_at = ?, updated_at = ?
		WHERE address = ?`,
		string(stateJSON),
		updatedAt.UTC().Format(time.RFC3339Nano),
		updatedAt.UTC().Format(time.RFC3339Nano),
		int64(address),
	)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking state update result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice reads one device row.
func scanDevice(row scanner) (*Device, error) {
	var (
		address        int64
		rorg, fn, ty   int
		sender         sql.NullInt64
		stateJSON      string
		stateUpdatedAt sql.NullString
		createdAt      string
		updatedAt      string
		device         Device
	)

	err := row.Scan(&address, &device.Name, &rorg, &fn, &ty, &sender,
		&stateJSON, &stateUpdatedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	device.Address = uint32(address) //nolint:gosec // stored as a 32-bit radio address
	device.Profile = eep.ProfileID{RORG: byte(rorg), Func: byte(fn), Type: byte(ty)}

	if sender.Valid {
		s := uint32(sender.Int64) //nolint:gosec // stored as a 32-bit radio address
		device.Sender = &s
	}

	if err := json.Unmarshal([]byte(stateJSON), &device.State); err != nil {
		return nil, fmt.Errorf("unmarshalling state for %s: %w", device.Name, err)
	}

	if stateUpdatedAt.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, stateUpdatedAt.String); err == nil {
			device.StateUpdatedAt = &ts
		}
	}

	// Timestamp format is controlled by Create/Update
	device.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	device.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &device, nil
}

// classifyConstraint maps SQLite unique constraint failures onto the
// package error taxonomy.
func classifyConstraint(err error, device *Device) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "devices.address") || strings.Contains(msg, "PRIMARY KEY"):
		return fmt.Errorf("%w: %s", ErrDuplicateAddress, device.AddressString())
	case strings.Contains(msg, "devices.name"):
		return fmt.Errorf("%w: %q", ErrDuplicateName, device.Name)
	default:
		return fmt.Errorf("persisting device %s: %w", device.AddressString(), err)
	}
}

// nullableSender converts an optional sender ID for storage.
func nullableSender(sender *uint32) any {
	if sender == nil {
		return nil
	}
	return int64(*sender)
}

// nullableTime converts an optional timestamp for storage.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
