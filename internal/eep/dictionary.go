package eep

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// XML document structure for the EEP dictionary.
//
// Layout: <telegrams> → <telegram rorg=...> → <profiles func=...> →
// <profile type=...> → <data> with <value> and <enum> field elements.
type xmlDictionary struct {
	XMLName   xml.Name      `xml:"telegrams"`
	Version   string        `xml:"version,attr"`
	Telegrams []xmlTelegram `xml:"telegram"`
}

type xmlTelegram struct {
	RORG        string            `xml:"rorg,attr"`
	Description string            `xml:"description,attr"`
	Profiles    []xmlProfileGroup `xml:"profiles"`
}

type xmlProfileGroup struct {
	Func        string       `xml:"func,attr"`
	Description string       `xml:"description,attr"`
	Profiles    []xmlProfile `xml:"profile"`
}

type xmlProfile struct {
	Type        string  `xml:"type,attr"`
	Description string  `xml:"description,attr"`
	Data        xmlData `xml:"data"`
}

type xmlData struct {
	Values []xmlValueField `xml:"value"`
	Enums  []xmlEnumField  `xml:"enum"`
}

type xmlValueField struct {
	Shortcut    string   `xml:"shortcut,attr"`
	Description string   `xml:"description,attr"`
	Offset      uint     `xml:"offset,attr"`
	Size        uint     `xml:"size,attr"`
	Unit        string   `xml:"unit,attr"`
	Range       xmlRange `xml:"range"`
	Scale       xmlScale `xml:"scale"`
}

type xmlRange struct {
	Min int64 `xml:"min"`
	Max int64 `xml:"max"`
}

type xmlScale struct {
	Min float64 `xml:"min"`
	Max float64 `xml:"max"`
}

type xmlEnumField struct {
	Shortcut    string        `xml:"shortcut,attr"`
	Description string        `xml:"description,attr"`
	Offset      uint          `xml:"offset,attr"`
	Size        uint          `xml:"size,attr"`
	Items       []xmlEnumItem `xml:"item"`
}

type xmlEnumItem struct {
	Description string `xml:"description,attr"`
	Value       uint32 `xml:"value,attr"`
}

// Store is the in-memory profile dictionary.
//
// It is populated once at startup from EEP.xml and can grow at runtime
// through Define. Lookups return deep copies so callers can never mutate
// the dictionary.
type Store struct {
	mu       sync.RWMutex
	profiles map[ProfileID]*Profile
	order    []ProfileID

	logger Logger
}

// NewStore creates an empty profile store.
func NewStore() *Store {
	return &Store{
		profiles: make(map[ProfileID]*Profile),
		logger:   noopLogger{},
	}
}

// SetLogger sets a logger for dictionary events.
func (s *Store) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// LoadFile parses and validates an EEP.xml dictionary file.
//
// Any parse or validation failure is fatal: the returned error wraps
// ErrMalformedDictionary or ErrDuplicateProfile and the caller is
// expected to abort startup.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dictionary: %w", err)
	}
	defer f.Close()

	store, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("dictionary %s: %w", path, err)
	}
	return store, nil
}

// Parse reads an EEP dictionary from r, validating every profile.
func Parse(r io.Reader) (*Store, error) {
	var doc xmlDictionary
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDictionary, err)
	}

	store := NewStore()

	for _, tel := range doc.Telegrams {
		rorg, err := parseHexByte(tel.RORG)
		if err != nil {
			return nil, fmt.Errorf("%w: telegram rorg %q: %w", ErrMalformedDictionary, tel.RORG, err)
		}

		for _, group := range tel.Profiles {
			fn, err := parseHexByte(group.Func)
			if err != nil {
				return nil, fmt.Errorf("%w: func %q under rorg %02X: %w", ErrMalformedDictionary, group.Func, rorg, err)
			}

			for _, xp := range group.Profiles {
				ty, err := parseHexByte(xp.Type)
				if err != nil {
					return nil, fmt.Errorf("%w: type %q under %02X-%02X: %w", ErrMalformedDictionary, xp.Type, rorg, fn, err)
				}

				profile := buildProfile(ProfileID{RORG: rorg, Func: fn, Type: ty}, group.Description, xp)
				if err := validateProfile(profile); err != nil {
					return nil, err
				}
				if err := store.add(profile); err != nil {
					return nil, err
				}
			}
		}
	}

	return store, nil
}

// buildProfile converts the XML representation into a Profile with
// fields ordered by bit offset.
func buildProfile(id ProfileID, groupDescription string, xp xmlProfile) *Profile {
	fields := make([]DataField, 0, len(xp.Data.Values)+len(xp.Data.Enums))

	for _, v := range xp.Data.Values {
		fields = append(fields, DataField{
			Shortcut:    v.Shortcut,
			Description: v.Description,
			Offset:      v.Offset,
			Size:        v.Size,
			Unit:        v.Unit,
			RangeMin:    v.Range.Min,
			RangeMax:    v.Range.Max,
			ScaleMin:    v.Scale.Min,
			ScaleMax:    v.Scale.Max,
		})
	}

	for _, e := range xp.Data.Enums {
		items := make(map[uint32]string, len(e.Items))
		for _, item := range e.Items {
			items[item.Value] = item.Description
		}
		fields = append(fields, DataField{
			Shortcut:    e.Shortcut,
			Description: e.Description,
			Offset:      e.Offset,
			Size:        e.Size,
			Enum:        items,
		})
	}

	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Offset < fields[j].Offset
	})

	return &Profile{
		ID:          id,
		Title:       groupDescription,
		Description: xp.Description,
		Fields:      fields,
	}
}

// validateProfile enforces the structural invariants every profile must
// satisfy before it becomes visible to lookups.
func validateProfile(p *Profile) error {
	if len(p.Fields) == 0 {
		return fmt.Errorf("%w: profile %s has no fields", ErrMalformedDictionary, p.ID)
	}

	dataBits, fixed := rorgDataBits(p.ID.RORG)

	seen := make(map[string]bool, len(p.Fields))
	for _, f := range p.Fields {
		if f.Shortcut == "" {
			return fmt.Errorf("%w: profile %s has a field without a shortcut", ErrMalformedDictionary, p.ID)
		}
		if seen[f.Shortcut] {
			return fmt.Errorf("%w: profile %s duplicates field %q", ErrMalformedDictionary, p.ID, f.Shortcut)
		}
		seen[f.Shortcut] = true

		if f.Size == 0 {
			return fmt.Errorf("%w: profile %s field %q has zero size", ErrMalformedDictionary, p.ID, f.Shortcut)
		}
		if f.Size > 32 {
			return fmt.Errorf("%w: profile %s field %q exceeds 32 bits", ErrMalformedDictionary, p.ID, f.Shortcut)
		}
		if fixed && f.Offset+f.Size > dataBits {
			return fmt.Errorf("%w: profile %s field %q spans bits %d-%d beyond the %d-bit payload",
				ErrMalformedDictionary, p.ID, f.Shortcut, f.Offset, f.Offset+f.Size-1, dataBits)
		}

		if f.IsEnum() {
			if len(f.Enum) == 0 {
				return fmt.Errorf("%w: profile %s enum %q has no items", ErrMalformedDictionary, p.ID, f.Shortcut)
			}
			continue
		}

		if f.RangeMin < 0 {
			// Extracted raw values are unsigned; a negative bound can
			// never match and would poison the encode rounding
			return fmt.Errorf("%w: profile %s field %q has negative raw range minimum %d",
				ErrMalformedDictionary, p.ID, f.Shortcut, f.RangeMin)
		}
		if f.RangeMin >= f.RangeMax {
			return fmt.Errorf("%w: profile %s field %q has inverted raw range [%d,%d]",
				ErrMalformedDictionary, p.ID, f.Shortcut, f.RangeMin, f.RangeMax)
		}
	}

	if err := checkFieldOverlap(p); err != nil {
		return err
	}

	return nil
}

// checkFieldOverlap rejects profiles where two fields claim the same bit.
func checkFieldOverlap(p *Profile) error {
	sorted := make([]DataField, len(p.Fields))
	copy(sorted, p.Fields)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Offset+prev.Size > cur.Offset {
			return fmt.Errorf("%w: profile %s fields %q and %q overlap at bit %d",
				ErrMalformedDictionary, p.ID, prev.Shortcut, cur.Shortcut, cur.Offset)
		}
	}
	return nil
}

// add inserts a validated profile, rejecting duplicate triples.
// Caller must have validated the profile first.
func (s *Store) add(p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProfile, p.ID)
	}

	s.profiles[p.ID] = p
	s.order = append(s.order, p.ID)
	return nil
}

// Get returns a copy of the profile for the given triple.
func (s *Store) Get(id ProfileID) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, false
	}
	return p.DeepCopy(), true
}

// Has reports whether the store knows the given triple.
func (s *Store) Has(id ProfileID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.profiles[id]
	return ok
}

// All returns copies of every profile in load order.
func (s *Store) All() []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Profile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.profiles[id].DeepCopy())
	}
	return out
}

// Len returns the number of profiles in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// Define registers a fully custom profile at runtime.
//
// The profile passes the same validation as dictionary entries. A triple
// already present (from the dictionary or an earlier Define) is rejected
// with ErrDuplicateProfile.
func (s *Store) Define(p Profile) error {
	cp := p.DeepCopy()
	if err := validateProfile(cp); err != nil {
		return err
	}
	if err := s.add(cp); err != nil {
		return err
	}

	s.logger.Info("custom profile defined",
		"profile", cp.ID.String(),
		"fields", len(cp.Fields),
	)
	return nil
}

// parseHexByte parses attribute values like "0xA5", "A5" or "a5".
func parseHexByte(s string) (byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if trimmed == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	v, err := strconv.ParseUint(trimmed, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("parsing hex byte %q: %w", s, err)
	}
	return byte(v), nil
}
