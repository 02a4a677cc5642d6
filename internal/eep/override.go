package eep

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// retainedGenerations is the maximum number of override generations kept
// per profile. Proposing beyond this rotates out the oldest record.
const retainedGenerations = 3

// Engine layers versioned field overrides on top of the profile store.
//
// Each proposal creates an immutable override record whose version number
// counts all proposals ever made for that triple, so versions keep
// climbing even after old generations rotate out.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Proposals are serialised per profile; different profiles proceed
//     in parallel.
type Engine struct {
	store *Store
	repo  OverrideRepository

	// cache holds retained generations per profile, newest first.
	cache   map[ProfileID][]Override
	cacheMu sync.RWMutex

	// locks serialises proposals per profile.
	locks   map[ProfileID]*sync.Mutex
	locksMu sync.Mutex

	logger Logger
}

// NewEngine creates an override engine over the given store and repository.
func NewEngine(store *Store, repo OverrideRepository) *Engine {
	return &Engine{
		store:  store,
		repo:   repo,
		cache:  make(map[ProfileID][]Override),
		locks:  make(map[ProfileID]*sync.Mutex),
		logger: noopLogger{},
	}
}

// SetLogger sets a logger for override events.
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Refresh loads all persisted overrides into the cache.
// Call once at startup after opening the repository.
func (e *Engine) Refresh(ctx context.Context) error {
	all, err := e.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("loading overrides: %w", err)
	}

	e.cacheMu.Lock()
	e.cache = all
	e.cacheMu.Unlock()

	e.logger.Info("overrides loaded", "profiles", len(all))
	return nil
}

// profileLock returns the proposal mutex for a triple, creating it on
// first use.
func (e *Engine) profileLock(id ProfileID) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}

// Propose records a new override generation for an existing base profile.
//
// The base profile must exist in the store; otherwise
// ErrUnknownBaseProfile is returned and nothing is recorded. Fields pass
// the same structural validation as dictionary entries. If the profile
// already holds the maximum number of retained generations, the oldest
// rotates out.
//
// Returns the created override record with its assigned version.
func (e *Engine) Propose(ctx context.Context, id ProfileID, fields []DataField) (Override, error) {
	base, ok := e.store.Get(id)
	if !ok {
		return Override{}, fmt.Errorf("%w: %s", ErrUnknownBaseProfile, id)
	}

	if err := validateOverrideFields(base, fields); err != nil {
		return Override{}, err
	}

	lock := e.profileLock(id)
	lock.Lock()
	defer lock.Unlock()

	version, err := e.repo.NextVersion(ctx, id)
	if err != nil {
		return Override{}, fmt.Errorf("allocating override version: %w", err)
	}

	ov := Override{
		Profile:   id,
		Version:   version,
		Fields:    copyFields(fields),
		CreatedAt: time.Now().UTC(),
	}

	if err := e.repo.Save(ctx, ov); err != nil {
		return Override{}, fmt.Errorf("saving override: %w", err)
	}

	// Update cache, newest first, and rotate past the retention limit.
	e.cacheMu.Lock()
	retained := append([]Override{ov}, e.cache[id]...)
	var evicted []Override
	if len(retained) > retainedGenerations {
		evicted = retained[retainedGenerations:]
		retained = retained[:retainedGenerations]
	}
	e.cache[id] = retained
	e.cacheMu.Unlock()

	for _, old := range evicted {
		if err := e.repo.Delete(ctx, id, old.Version); err != nil {
			e.logger.Warn("failed to prune rotated override",
				"profile", id.String(),
				"version", old.Version,
				"error", err,
			)
		}
	}

	e.logger.Info("override proposed",
		"profile", id.String(),
		"version", ov.Version,
		"fields", len(ov.Fields),
	)
	return ov.DeepCopy(), nil
}

// Revert re-proposes a retained generation as the newest override.
// The reverted record gets a fresh version number; the source record is
// untouched.
func (e *Engine) Revert(ctx context.Context, id ProfileID, version int64) (Override, error) {
	e.cacheMu.RLock()
	var source *Override
	for i := range e.cache[id] {
		if e.cache[id][i].Version == version {
			ov := e.cache[id][i].DeepCopy()
			source = &ov
			break
		}
	}
	e.cacheMu.RUnlock()

	if source == nil {
		return Override{}, fmt.Errorf("%w: %s version %d", ErrUnknownVersion, id, version)
	}

	return e.Propose(ctx, id, source.Fields)
}

// History returns the retained override generations for a profile,
// newest first. The result is a deep copy.
func (e *Engine) History(id ProfileID) []Override {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()

	retained := e.cache[id]
	out := make([]Override, len(retained))
	for i, ov := range retained {
		out[i] = ov.DeepCopy()
	}
	return out
}

// Effective returns the profile with the newest override generation
// merged over the base by field name.
//
// Base fields the override does not mention pass through unchanged; an
// override can never drop a base field. Override fields with shortcuts
// unknown to the base are appended.
func (e *Engine) Effective(id ProfileID) (*Profile, error) {
	base, ok := e.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, id)
	}

	e.cacheMu.RLock()
	retained := e.cache[id]
	var newest *Override
	if len(retained) > 0 {
		ov := retained[0].DeepCopy()
		newest = &ov
	}
	e.cacheMu.RUnlock()

	if newest == nil {
		return base, nil
	}

	return mergeOverride(base, newest), nil
}

// mergeOverride applies an override to a base profile copy.
func mergeOverride(base *Profile, ov *Override) *Profile {
	merged := base.DeepCopy()

	for _, of := range ov.Fields {
		replaced := false
		for i := range merged.Fields {
			if merged.Fields[i].Shortcut == of.Shortcut {
				merged.Fields[i] = of.DeepCopy()
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Fields = append(merged.Fields, of.DeepCopy())
		}
	}

	return merged
}

// validateOverrideFields checks proposed fields against the same
// structural rules as dictionary fields, in the context of the base
// profile's payload width.
func validateOverrideFields(base *Profile, fields []DataField) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: override for %s proposes no fields", ErrMalformedDictionary, base.ID)
	}

	// Validate as if the merged profile were a dictionary entry.
	probe := mergeOverride(base, &Override{Fields: copyFields(fields)})
	return validateProfile(probe)
}

// copyFields deep-copies a field slice.
func copyFields(fields []DataField) []DataField {
	out := make([]DataField, len(fields))
	for i, f := range fields {
		out[i] = f.DeepCopy()
	}
	return out
}
