package security

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-sessionvault/core"
)

const (
	// DefaultGraceWindow keeps retired keys decrypt-valid for 90 days, after
	// which their material is purged and blobs on them become unreadable.
	DefaultGraceWindow = 90 * 24 * time.Hour

	keySize = 32
)

// Key is one generation of symmetric key material.
type Key struct {
	Version   int
	Material  []byte
	CreatedAt time.Time
	RetiredAt *time.Time
}

// Retired reports whether the key no longer encrypts new data.
func (k Key) Retired() bool {
	return k.RetiredAt != nil
}

// DecryptableAt reports whether the key may still serve decryption at ts,
// honoring the retirement grace window.
func (k Key) DecryptableAt(ts time.Time, grace time.Duration) bool {
	if k.RetiredAt == nil {
		return true
	}
	return k.DecryptWindow(grace).Allows(ts)
}

type keyringState struct {
	active  Key
	retired map[int]Key
}

// Keyring holds the versioned key hierarchy. The active key is read through
// an atomic snapshot so a rotation cannot interleave with an in-flight
// cryptographic call.
type Keyring struct {
	state atomic.Pointer[keyringState]

	mu    sync.Mutex
	grace time.Duration
	store core.KeyStore
	now   func() time.Time
}

type KeyringOption func(*Keyring)

func WithGraceWindow(window time.Duration) KeyringOption {
	return func(k *Keyring) {
		if window > 0 {
			k.grace = window
		}
	}
}

func WithKeyStore(store core.KeyStore) KeyringOption {
	return func(k *Keyring) {
		k.store = store
	}
}

func WithClock(now func() time.Time) KeyringOption {
	return func(k *Keyring) {
		if now != nil {
			k.now = now
		}
	}
}

// NewKeyring creates a keyring with a freshly generated version-1 active key.
func NewKeyring(ctx context.Context, opts ...KeyringOption) (*Keyring, error) {
	ring := &Keyring{
		grace: DefaultGraceWindow,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(ring)
	}

	material, err := generateKeyMaterial()
	if err != nil {
		return nil, err
	}
	active := Key{Version: 1, Material: material, CreatedAt: ring.now()}
	ring.state.Store(&keyringState{active: active, retired: map[int]Key{}})

	if ring.store != nil {
		if err := ring.store.Save(ctx, keyToRecord(active)); err != nil {
			return nil, fmt.Errorf("security: persist initial key: %w", err)
		}
	}
	return ring, nil
}

// LoadKeyring rebuilds a keyring from persisted key records. Exactly one
// unretired record must exist.
func LoadKeyring(ctx context.Context, store core.KeyStore, opts ...KeyringOption) (*Keyring, error) {
	if store == nil {
		return nil, fmt.Errorf("security: key store is required")
	}
	records, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("security: list keys: %w", err)
	}

	ring := &Keyring{
		grace: DefaultGraceWindow,
		store: store,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(ring)
	}

	state := &keyringState{retired: map[int]Key{}}
	var haveActive bool
	sort.Slice(records, func(i, j int) bool { return records[i].Version < records[j].Version })
	for _, record := range records {
		if record.PurgedAt != nil {
			continue
		}
		key := Key{
			Version:   record.Version,
			Material:  normalizeMaterial(record.Material),
			CreatedAt: record.CreatedAt,
			RetiredAt: record.RetiredAt,
		}
		if key.Retired() {
			state.retired[key.Version] = key
			continue
		}
		if haveActive {
			return nil, fmt.Errorf("security: multiple active key versions persisted")
		}
		state.active = key
		haveActive = true
	}
	if !haveActive {
		return nil, fmt.Errorf("security: no active key version persisted")
	}
	ring.state.Store(state)
	return ring, nil
}

// Active returns an atomic snapshot of the encrypting key.
func (k *Keyring) Active() Key {
	if k == nil {
		return Key{}
	}
	state := k.state.Load()
	if state == nil {
		return Key{}
	}
	return state.active
}

// ActiveVersion returns the version new encryptions use.
func (k *Keyring) ActiveVersion() int {
	return k.Active().Version
}

// ActiveKeyCreatedAt returns when the active key was minted. Schedulers use
// it to decide whether a rotation is due.
func (k *Keyring) ActiveKeyCreatedAt() time.Time {
	return k.Active().CreatedAt
}

// GraceWindow returns the configured retirement grace window.
func (k *Keyring) GraceWindow() time.Duration {
	if k == nil {
		return 0
	}
	return k.grace
}

// Lookup resolves key material for a blob's version. stale reports the key is
// retired (grace window) and the caller should re-seal under the active key.
func (k *Keyring) Lookup(version int) (key Key, stale bool, err error) {
	if k == nil {
		return Key{}, false, fmt.Errorf("security: keyring is nil")
	}
	state := k.state.Load()
	if state == nil {
		return Key{}, false, fmt.Errorf("security: keyring is empty")
	}
	if state.active.Version == version {
		return state.active, false, nil
	}
	retired, ok := state.retired[version]
	if !ok {
		return Key{}, false, core.NewUnknownKeyVersionError(
			fmt.Sprintf("security: key version %d is not held", version),
		)
	}
	if !retired.DecryptableAt(k.now(), k.grace) {
		return Key{}, false, core.NewUnknownKeyVersionError(
			fmt.Sprintf("security: key version %d is past its grace window", version),
		)
	}
	return retired, true, nil
}

// Rotate creates the next active key version and retires the prior one into
// the grace window. Existing blobs are not re-encrypted eagerly; they are
// re-sealed opportunistically on their next successful decrypt.
func (k *Keyring) Rotate(ctx context.Context) (oldVersion, newVersion int, retiredAt time.Time, err error) {
	if k == nil {
		return 0, 0, time.Time{}, fmt.Errorf("security: keyring is nil")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	current := k.state.Load()
	if current == nil {
		return 0, 0, time.Time{}, fmt.Errorf("security: keyring is empty")
	}

	material, err := generateKeyMaterial()
	if err != nil {
		return 0, 0, time.Time{}, err
	}
	now := k.now()
	prior := current.active
	prior.RetiredAt = &now

	next := &keyringState{
		active:  Key{Version: prior.Version + 1, Material: material, CreatedAt: now},
		retired: make(map[int]Key, len(current.retired)+1),
	}
	for version, key := range current.retired {
		next.retired[version] = key
	}
	next.retired[prior.Version] = prior

	if k.store != nil {
		if err := k.store.Save(ctx, keyToRecord(next.active)); err != nil {
			return 0, 0, time.Time{}, fmt.Errorf("security: persist rotated key: %w", err)
		}
		if err := k.store.Retire(ctx, prior.Version, now); err != nil {
			return 0, 0, time.Time{}, fmt.Errorf("security: retire key %d: %w", prior.Version, err)
		}
	}

	k.state.Store(next)
	return prior.Version, next.active.Version, now, nil
}

// PurgeExpired drops retired keys whose grace window has elapsed. Purged
// versions become tombstones: later lookups fail with UnknownKeyVersion.
func (k *Keyring) PurgeExpired(ctx context.Context) (purged []int, err error) {
	if k == nil {
		return nil, fmt.Errorf("security: keyring is nil")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	current := k.state.Load()
	if current == nil {
		return nil, nil
	}
	now := k.now()

	next := &keyringState{
		active:  current.active,
		retired: map[int]Key{},
	}
	for version, key := range current.retired {
		if key.DecryptableAt(now, k.grace) {
			next.retired[version] = key
			continue
		}
		purged = append(purged, version)
	}
	if len(purged) == 0 {
		return nil, nil
	}
	sort.Ints(purged)

	if k.store != nil {
		for _, version := range purged {
			if err := k.store.MarkPurged(ctx, version, now); err != nil {
				return nil, fmt.Errorf("security: mark key %d purged: %w", version, err)
			}
		}
	}

	k.state.Store(next)
	return purged, nil
}

func keyToRecord(key Key) core.EncryptionKeyRecord {
	material := make([]byte, len(key.Material))
	copy(material, key.Material)
	return core.EncryptionKeyRecord{
		Version:   key.Version,
		Material:  material,
		CreatedAt: key.CreatedAt,
		RetiredAt: key.RetiredAt,
	}
}

func generateKeyMaterial() ([]byte, error) {
	material := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, fmt.Errorf("security: key generation failed: %w", err)
	}
	return material, nil
}

func normalizeMaterial(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		material := make([]byte, len(value))
		copy(material, value)
		return material
	}
	sum := sha256.Sum256(value)
	material := make([]byte, len(sum))
	copy(material, sum[:])
	return material
}
