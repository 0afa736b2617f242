package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/vk/assembly/internal/descriptor"
	"github.com/vk/assembly/internal/model"
	"github.com/vk/assembly/internal/resource"
	"golang.org/x/sync/errgroup"
)

// Record is a stored dataset: arbitrary fields around one required,
// store-unique "key" field.
type Record = map[string]any

// KeyField is the required record field holding the store-unique key.
const KeyField = "key"

// Settings select and parameterize exactly one serving tier, fixed for the
// datastore's lifetime.
type Settings struct {
	Local  string `json:"local,omitempty"`
	Store  string `json:"store,omitempty"`
	URL    string `json:"url,omitempty"`
	DB     string `json:"db,omitempty"`
	Method string `json:"method,omitempty"`
	User   string `json:"user,omitempty"`
}

// canonical returns the canonical serialization that defines source
// identity: byte-identical settings mean the same underlying datastore.
func (s Settings) canonical() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// InvalidKeyError means a record key or query failed the syntax check and
// was rejected before dispatch.
type InvalidKeyError struct {
	Key string
}

func (e InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid record key: %q", e.Key)
}

// RemoteError is a textual error payload from the remote tier. It
// short-circuits the normal success path.
type RemoteError struct {
	Message string
}

func (e RemoteError) Error() string {
	return "remote server error: " + e.Message
}

var keyPattern = regexp.MustCompile(`^[0-9A-Za-z._:-]+$`)

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return InvalidKeyError{Key: key}
	}
	return nil
}

// tier is the uniform contract every backing tier implements.
type tier interface {
	get(ctx context.Context, key string) (Record, error)
	query(ctx context.Context, q Record) ([]Record, error)
	count(ctx context.Context, q Record) (int, error)
	set(ctx context.Context, rec Record) (Record, error)
	del(ctx context.Context, key string) (any, error)
	close() error
}

// Datastore serves one settings object through its fixed tier.
type Datastore struct {
	settings Settings
	tier     tier
	cache    *Cache
}

// Settings returns the settings the datastore was constructed from.
func (d *Datastore) Settings() Settings {
	return d.settings
}

// ownerKey carries the instance on whose behalf a datastore operation runs,
// so the remote tier can walk its parent chain for an auth token.
type ownerKey struct{}

// WithOwner attaches the calling instance to a context.
func WithOwner(ctx context.Context, inst *model.Instance) context.Context {
	return context.WithValue(ctx, ownerKey{}, inst)
}

func ownerFrom(ctx context.Context) *model.Instance {
	inst, _ := ctx.Value(ownerKey{}).(*model.Instance)
	return inst
}

// Get retrieves by key (string) or by query (map, subset-equality over its
// fields). Embedded get-references inside the result are resolved before it
// is returned.
func (d *Datastore) Get(ctx context.Context, keyOrQuery any) (any, error) {
	switch k := keyOrQuery.(type) {
	case string:
		if err := validateKey(k); err != nil {
			return nil, err
		}
		rec, err := d.tier.get(ctx, k)
		if err != nil || rec == nil {
			return nil, err
		}
		if err := d.resolveRefs(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	case Record:
		recs, err := d.tier.query(ctx, k)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if err := d.resolveRefs(ctx, rec); err != nil {
				return nil, err
			}
		}
		return recs, nil
	default:
		return nil, InvalidKeyError{Key: fmt.Sprint(keyOrQuery)}
	}
}

// Count reports how many records match a query.
func (d *Datastore) Count(ctx context.Context, query Record) (int, error) {
	return d.tier.count(ctx, query)
}

// Set upserts a record under the priority-data integration law: the given
// record's fields overwrite (or, via merge.Remove, delete) the stored ones.
// A record without a key gets a generated one. The stored record is
// returned.
func (d *Datastore) Set(ctx context.Context, rec Record) (Record, error) {
	if rec == nil {
		return nil, InvalidKeyError{Key: "<nil record>"}
	}
	if key, ok := rec[KeyField].(string); ok {
		if err := validateKey(key); err != nil {
			return nil, err
		}
	}
	return d.tier.set(ctx, rec)
}

// Del removes the record with the given key and returns it. An empty key
// clears the store and returns everything that was removed.
func (d *Datastore) Del(ctx context.Context, key string) (any, error) {
	if key != "" {
		if err := validateKey(key); err != nil {
			return nil, err
		}
	}
	return d.tier.del(ctx, key)
}

// resolveRefs walks a fetched record and resolves every embedded get-style
// descriptor, at any depth, before the record is handed back. All
// references at one depth resolve together; the walk recurses into the
// values they produce.
func (d *Datastore) resolveRefs(ctx context.Context, rec Record) error {
	type slot struct {
		write func(any)
		ref   *descriptor.Descriptor
	}
	var slots []slot

	var scan func(v any, write func(any))
	scan = func(v any, write func(any)) {
		switch t := v.(type) {
		case Record:
			for k, e := range t {
				scan(e, func(nv any) { t[k] = nv })
			}
		case []any:
			if ref, ok := descriptor.Detect(v); ok && ref.Tag == descriptor.TagGet {
				slots = append(slots, slot{write: write, ref: ref})
				return
			}
			for i, e := range t {
				scan(e, func(nv any) { t[i] = nv })
			}
		}
	}
	for k, e := range rec {
		scan(e, func(nv any) { rec[k] = nv })
	}

	if len(slots) == 0 {
		return nil
	}

	results := make([]any, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range slots {
		g.Go(func() error {
			value, err := d.resolveRef(gctx, s.ref)
			if err != nil {
				return err
			}
			results[i] = value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, s := range slots {
		s.write(results[i])
		// References fetched by this pass may themselves contain
		// references one level deeper.
		if nested, ok := results[i].(Record); ok {
			if err := d.resolveRefs(ctx, nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveRef resolves one get descriptor. The two-argument form
// ["get", settings, keyOrQuery] targets another datastore through the
// shared cache; the one-argument form ["get", keyOrQuery] stays on this
// one.
func (d *Datastore) resolveRef(ctx context.Context, ref *descriptor.Descriptor) (any, error) {
	target := d
	keyArg := ref.Arg(0)
	if s := ref.ArgMap(0); s != nil && len(ref.Args) > 1 {
		if d.cache == nil {
			return nil, fmt.Errorf("get reference names settings but the datastore has no cache")
		}
		other, err := d.cache.Open(SettingsFromMap(s))
		if err != nil {
			return nil, err
		}
		target = other
		keyArg = ref.Arg(1)
	}
	return target.Get(ctx, keyArg)
}

// SettingsFromMap builds Settings from their configuration wire form.
func SettingsFromMap(m map[string]any) Settings {
	return Settings{
		Local:  str(m["local"]),
		Store:  str(m["store"]),
		URL:    str(m["url"]),
		DB:     str(m["db"]),
		Method: str(m["method"]),
		User:   str(m["user"]),
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// Cache hands out datastores by settings identity. Two requests with the
// same canonical serialization share one underlying object.
type Cache struct {
	loader  *resource.Loader
	baseDir string

	mu     sync.Mutex
	stores map[string]*Datastore
}

// NewCache creates a datastore cache. baseDir hosts the embedded tier's
// database files.
func NewCache(loader *resource.Loader, baseDir string) *Cache {
	return &Cache{
		loader:  loader,
		baseDir: baseDir,
		stores:  make(map[string]*Datastore),
	}
}

// Open returns the datastore serving the given settings, constructing it on
// first use. Tier priority: remote when a URL is present, embedded when a
// store name is present, in-memory otherwise.
func (c *Cache) Open(settings Settings) (*Datastore, error) {
	key := settings.canonical()

	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.stores[key]; ok {
		return d, nil
	}

	d := &Datastore{settings: settings, cache: c}
	switch {
	case settings.URL != "":
		d.tier = newRemoteTier(settings, c.loader)
	case settings.Store != "":
		d.tier = newLocalTier(settings, c.baseDir)
	default:
		d.tier = newMemoryTier()
	}
	c.stores[key] = d
	return d, nil
}

// Close shuts every constructed tier down.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for key, d := range c.stores {
		if err := d.tier.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close datastore %s: %w", key, err)
		}
		delete(c.stores, key)
	}
	return firstErr
}
