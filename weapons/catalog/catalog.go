package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Weapon models the JSON contract for a designer-authored weapon entry. It is
// shared with the schema generator so we can produce a machine-readable
// document for validation and editor tooling.
//
// Damage is the authoritative ceiling: hit claims declaring more are clamped
// to it before validation applies the result. FireIntervalMillis is advisory
// pacing for clients; the server does not throttle fire requests.
type Weapon struct {
	ID                 string  `json:"id" jsonschema:"title=Weapon ID,description=Designer-facing identifier referenced by entity state and hit claims.,pattern=^[a-z0-9-]+$,minLength=1,required"`
	DisplayName        string  `json:"displayName,omitempty" jsonschema:"title=Display Name,description=Human-readable name shown in client UI."`
	Damage             int     `json:"damage" jsonschema:"title=Damage,description=Maximum damage a single validated hit may apply.,minimum=1,required"`
	HeadshotMultiplier float64 `json:"headshotMultiplier,omitempty" jsonschema:"title=Headshot Multiplier,description=Damage ceiling multiplier applied when a hit claim declares the head part.,minimum=1"`
	MagazineSize       int     `json:"magazineSize" jsonschema:"title=Magazine Size,description=Rounds available between reloads.,minimum=1,required"`
	ReloadMillis       int     `json:"reloadMillis" jsonschema:"title=Reload Time,description=Milliseconds a reload takes before the magazine refills.,minimum=0"`
	FireIntervalMillis int     `json:"fireIntervalMillis" jsonschema:"title=Fire Interval,description=Advisory milliseconds between shots for client pacing.,minimum=0"`
	MaxRange           float64 `json:"maxRange" jsonschema:"title=Maximum Range,description=World units beyond which hit claims are rejected.,minimum=0,required"`
}

// FileWeapons represents the contents of config/weapons.json. The loader
// accepts either arrays or objects keyed by weapon ID; the schema models both.
type FileWeapons []Weapon

// ReloadDuration converts the configured reload time into a duration.
func (w Weapon) ReloadDuration() time.Duration {
	return time.Duration(w.ReloadMillis) * time.Millisecond
}

// HeadshotDamage is the ceiling for claims declaring the head part. Weapons
// without a multiplier keep the base ceiling.
func (w Weapon) HeadshotDamage() int {
	if w.HeadshotMultiplier <= 1 {
		return w.Damage
	}
	return int(math.Round(float64(w.Damage) * w.HeadshotMultiplier))
}

var idPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

type source interface {
	Load() ([]byte, error)
	Path() string
}

type fileSource struct {
	path string
}

func (f fileSource) Load() ([]byte, error) {
	return os.ReadFile(f.path)
}

func (f fileSource) Path() string {
	return f.path
}

// MemorySource serves raw catalog bytes; tests use it instead of disk files.
type MemorySource struct {
	Name string
	Data []byte
}

func (m MemorySource) Load() ([]byte, error) {
	return m.Data, nil
}

func (m MemorySource) Path() string {
	if m.Name == "" {
		return "memory"
	}
	return m.Name
}

// Resolver merges one or more catalog sources into a stable lookup table.
// Call Reload to pick up on-disk changes (used for dev hot reload).
type Resolver struct {
	mu      sync.RWMutex
	sources []source
	weapons map[string]Weapon
}

// DefaultPaths returns the canonical catalog locations relative to the server
// module root. Callers may pass these to Load.
func DefaultPaths() []string {
	return []string{
		filepath.Join("config", "weapons.json"),
		filepath.Join("..", "config", "weapons.json"),
	}
}

// Load constructs a Resolver backed by the provided catalog file paths.
// Missing files are skipped; when no source yields any weapon the built-in
// set applies so a bare checkout still boots.
func Load(paths ...string) (*Resolver, error) {
	sources := make([]source, 0, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		sources = append(sources, fileSource{path: trimmed})
	}
	return NewResolver(sources...)
}

// NewResolver constructs a Resolver from arbitrary sources. Tests can supply
// MemorySource values while production code uses file paths.
func NewResolver(sources ...source) (*Resolver, error) {
	r := &Resolver{
		sources: append([]source(nil), sources...),
		weapons: make(map[string]Weapon),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses all catalog sources. Later sources override earlier ones to
// support local overlays during development.
func (r *Resolver) Reload() error {
	if r == nil {
		return nil
	}
	weapons := make(map[string]Weapon)
	for _, src := range r.sources {
		data, err := src.Load()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("catalog: failed loading %s: %w", src.Path(), err)
		}
		entries, err := decodeWeapons(data)
		if err != nil {
			return fmt.Errorf("catalog: failed parsing %s: %w", src.Path(), err)
		}
		seen := make(map[string]struct{}, len(entries))
		for _, weapon := range entries {
			id := strings.TrimSpace(weapon.ID)
			if id == "" {
				return fmt.Errorf("catalog: entry missing id in %s", src.Path())
			}
			if !idPattern.MatchString(id) {
				return fmt.Errorf("catalog: weapon id %q in %s must match %s", id, src.Path(), idPattern)
			}
			if _, dup := seen[id]; dup {
				return fmt.Errorf("catalog: duplicate weapon id %q in %s", id, src.Path())
			}
			seen[id] = struct{}{}
			weapon.ID = id
			if err := validateWeapon(weapon); err != nil {
				return fmt.Errorf("catalog: weapon %q in %s: %w", id, src.Path(), err)
			}
			weapons[id] = weapon
		}
	}
	if len(weapons) == 0 {
		for _, weapon := range builtinWeapons() {
			weapons[weapon.ID] = weapon
		}
	}

	r.mu.Lock()
	r.weapons = weapons
	r.mu.Unlock()
	return nil
}

func validateWeapon(w Weapon) error {
	if w.Damage <= 0 {
		return fmt.Errorf("damage must be positive, got %d", w.Damage)
	}
	if w.HeadshotMultiplier != 0 && w.HeadshotMultiplier < 1 {
		return fmt.Errorf("headshotMultiplier must be at least 1, got %v", w.HeadshotMultiplier)
	}
	if w.MagazineSize <= 0 {
		return fmt.Errorf("magazineSize must be positive, got %d", w.MagazineSize)
	}
	if w.ReloadMillis < 0 {
		return fmt.Errorf("reloadMillis must not be negative, got %d", w.ReloadMillis)
	}
	if w.FireIntervalMillis < 0 {
		return fmt.Errorf("fireIntervalMillis must not be negative, got %d", w.FireIntervalMillis)
	}
	if w.MaxRange <= 0 {
		return fmt.Errorf("maxRange must be positive, got %v", w.MaxRange)
	}
	return nil
}

// Resolve returns the weapon for the provided designer ID.
func (r *Resolver) Resolve(id string) (Weapon, bool) {
	if r == nil {
		return Weapon{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	weapon, ok := r.weapons[id]
	return weapon, ok
}

// MaxDamage returns the damage ceiling for a weapon ID.
func (r *Resolver) MaxDamage(id string) (int, bool) {
	weapon, ok := r.Resolve(id)
	if !ok {
		return 0, false
	}
	return weapon.Damage, true
}

// Weapons returns a snapshot of the catalog sorted by ID, suitable for the
// HTTP weapon-config endpoint.
func (r *Resolver) Weapons() []Weapon {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Weapon, 0, len(r.weapons))
	for _, weapon := range r.weapons {
		out = append(out, weapon)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fingerprint hashes the catalog contents. Join responses carry it so clients
// holding a stale local weapon table can tell before the first hit claim.
func (r *Resolver) Fingerprint() string {
	if r == nil {
		return ""
	}
	hasher := fnv.New64a()
	for _, weapon := range r.Weapons() {
		fmt.Fprintf(hasher, "%s|%d|%g|%d|%d|%d|%g;",
			weapon.ID, weapon.Damage, weapon.HeadshotMultiplier, weapon.MagazineSize,
			weapon.ReloadMillis, weapon.FireIntervalMillis, weapon.MaxRange)
	}
	return fmt.Sprintf("%016x", hasher.Sum64())
}

func decodeWeapons(data []byte) ([]Weapon, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var entries []Weapon
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	case '{':
		var object map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(object))
		for id := range object {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		entries := make([]Weapon, 0, len(ids))
		for _, id := range ids {
			var weapon Weapon
			if err := json.Unmarshal(object[id], &weapon); err != nil {
				return nil, fmt.Errorf("weapon %q: %w", id, err)
			}
			if weapon.ID == "" {
				weapon.ID = id
			} else if weapon.ID != id {
				return nil, fmt.Errorf("weapon id %q does not match key %q", weapon.ID, id)
			}
			entries = append(entries, weapon)
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("unexpected json token %q", string(trimmed[:1]))
	}
}

func builtinWeapons() []Weapon {
	return []Weapon{
		{ID: "rifle", DisplayName: "Rifle", Damage: 25, HeadshotMultiplier: 2, MagazineSize: 30, ReloadMillis: 1800, FireIntervalMillis: 100, MaxRange: 150},
		{ID: "pistol", DisplayName: "Pistol", Damage: 15, HeadshotMultiplier: 1.5, MagazineSize: 12, ReloadMillis: 1200, FireIntervalMillis: 250, MaxRange: 80},
	}
}
