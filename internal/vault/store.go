package vault

import "context"

// MetadataStore is the persistent key/value store holding the salt and the
// vault header. Get returns nil, nil for a missing key.
type MetadataStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// SetIfAbsent stores value unless key already exists, and returns the
	// value stored under key afterwards. It must be atomic.
	SetIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// RecordStore persists vault entries keyed by id.
type RecordStore interface {
	Insert(ctx context.Context, e VaultEntry) error
	Update(ctx context.Context, e VaultEntry) error
	Delete(ctx context.Context, id EntryID) error
	Get(ctx context.Context, id EntryID) (VaultEntry, error)
	// ListAll returns pinned entries first, then by site and username.
	ListAll(ctx context.Context) ([]VaultEntry, error)
	Clear(ctx context.Context) error
}
