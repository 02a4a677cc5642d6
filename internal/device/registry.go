package device

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// namePattern constrains device names to safe MQTT topic segments.
var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]{0,62}[a-z0-9])?$`)

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache keyed by radio
// address for fast lookups on every telegram.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the mutating operations. The in-memory state is authoritative:
// a failed persistence write marks the device dirty and is retried on
// the next successful decode rather than surfacing to the pipeline.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[uint32]*Device
	dirty   map[uint32]bool
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[uint32]*Device),
		dirty:  make(map[uint32]bool),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[uint32]*Device, len(devices))
	r.dirty = make(map[uint32]bool)
	for i := range devices {
		d := devices[i]
		r.cache[d.Address] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Register adds a new device.
//
// The address and name must both be unused; a duplicate address fails
// with ErrDuplicateAddress and leaves the existing registration intact.
func (r *Registry) Register(ctx context.Context, device *Device) error {
	if err := validateName(device.Name); err != nil {
		return err
	}
	if device.Profile.IsZero() {
		return fmt.Errorf("%w: zero triple", ErrInvalidProfile)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if _, exists := r.cache[device.Address]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAddress, device.AddressString())
	}
	for _, d := range r.cache {
		if d.Name == device.Name {
			return fmt.Errorf("%w: %q", ErrDuplicateName, device.Name)
		}
	}

	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now
	if device.State == nil {
		device.State = make(map[string]FieldState)
	}

	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}

	r.cache[device.Address] = device.DeepCopy()

	r.logger.Info("device registered",
		"address", device.AddressString(),
		"name", device.Name,
		"profile", device.Profile.String(),
	)
	return nil
}

// Get retrieves a device by radio address.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(address uint32) (*Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	cached, ok := r.cache[address]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%08X", ErrDeviceNotFound, address)
	}
	return cached.DeepCopy(), nil
}

// Has reports whether an address is registered. Used on the hot path
// for every incoming telegram.
func (r *Registry) Has(address uint32) bool {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	_, ok := r.cache[address]
	return ok
}

// GetByName retrieves a device by its unique name.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetByName(name string) (*Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	for _, d := range r.cache {
		if d.Name == name {
			return d.DeepCopy(), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

// List retrieves all devices ordered by name.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) List() []Device {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Name < devices[j].Name
	})
	return devices
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Rename changes a device's name, keeping name uniqueness.
func (r *Registry) Rename(ctx context.Context, address uint32, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	cached, ok := r.cache[address]
	if !ok {
		return fmt.Errorf("%w: 0x%08X", ErrDeviceNotFound, address)
	}
	for addr, d := range r.cache {
		if addr != address && d.Name == name {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
	}

	updated := cached.DeepCopy()
	updated.Name = name
	updated.UpdatedAt = time.Now().UTC()

	if err := r.repo.Update(ctx, updated); err != nil {
		return err
	}

	r.cache[address] = updated
	r.logger.Info("device renamed", "address", updated.AddressString(), "name", name)
	return nil
}

// Delete removes a device.
func (r *Registry) Delete(ctx context.Context, address uint32) error {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if _, ok := r.cache[address]; !ok {
		return fmt.Errorf("%w: 0x%08X", ErrDeviceNotFound, address)
	}

	if err := r.repo.Delete(ctx, address); err != nil {
		return err
	}

	delete(r.cache, address)
	delete(r.dirty, address)
	r.logger.Info("device deleted", "address", fmt.Sprintf("0x%08X", address))
	return nil
}

// ApplyDecoded merges decoded field values into a device's state.
//
// Only the fields present in the mapping are overwritten; fields that
// failed to decode keep their previous values. The merged state is
// persisted synchronously after every update. A write failure is
// logged and the device marked dirty; because each write carries the
// full snapshot, the next successful write clears the backlog.
//
// Returns the updated device as a deep copy.
func (r *Registry) ApplyDecoded(ctx context.Context, address uint32, fields map[string]FieldState) (*Device, error) {
	if len(fields) == 0 {
		return r.Get(address)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	cached, ok := r.cache[address]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%08X", ErrDeviceNotFound, address)
	}

	updated := cached.DeepCopy()
	if updated.State == nil {
		updated.State = make(map[string]FieldState, len(fields))
	}
	for name, fs := range fields {
		updated.State[name] = fs
	}
	now := time.Now().UTC()
	updated.StateUpdatedAt = &now
	r.cache[address] = updated

	// The cache is authoritative; persistence failures retry on the
	// next decode instead of stalling the pipeline.
	wasDirty := r.dirty[address]
	if err := r.repo.UpdateState(ctx, address, updated.State, now); err != nil {
		r.dirty[address] = true
		r.logger.Warn("device state write failed, will retry",
			"address", updated.AddressString(),
			"error", err,
		)
	} else if wasDirty {
		delete(r.dirty, address)
		r.logger.Info("device state write recovered", "address", updated.AddressString())
	}

	return updated.DeepCopy(), nil
}

// FlushDirty retries persistence for devices whose last state write
// failed. Called on shutdown and periodically by the pipeline.
func (r *Registry) FlushDirty(ctx context.Context) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	for address := range r.dirty {
		cached, ok := r.cache[address]
		if !ok {
			delete(r.dirty, address)
			continue
		}

		ts := time.Now().UTC()
		if cached.StateUpdatedAt != nil {
			ts = *cached.StateUpdatedAt
		}
		if err := r.repo.UpdateState(ctx, address, cached.State, ts); err != nil {
			r.logger.Warn("device state flush failed",
				"address", cached.AddressString(),
				"error", err,
			)
			continue
		}
		delete(r.dirty, address)
	}
}

// DirtyCount returns how many devices have unpersisted state.
func (r *Registry) DirtyCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.dirty)
}

// validateName checks that a name is usable as an MQTT topic segment.
func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (lowercase letters, digits, - and _, max 64 chars)",
			ErrInvalidName, name)
	}
	return nil
}
