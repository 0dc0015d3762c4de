package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Hussein-Mazeh/passvault/internal/config"
	"github.com/Hussein-Mazeh/passvault/internal/db"
	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/internal/logging"
	"github.com/Hussein-Mazeh/passvault/internal/session"
	"github.com/Hussein-Mazeh/passvault/internal/vault"
	"github.com/Hussein-Mazeh/passvault/krypto"
	"github.com/Hussein-Mazeh/passvault/store"
)

// checkKey holds an encryption of checkPlaintext under the password-mode key,
// used to reject a wrong master password at unlock.
const (
	checkKey       = "vault_check"
	checkPlaintext = "passvault"
)

// Service exposes high-level vault operations for the CLI.
type Service struct {
	records vault.RecordStore
	meta    vault.MetadataStore
	salts   *vault.SaltStore
	deriver *vault.Deriver
	cache   *session.KeyCache
	logger  logging.Logger

	closer func() error
}

// New returns a service over the given stores. cache holds the unlocked key
// between calls and may be shared with nothing else.
func New(records vault.RecordStore, meta vault.MetadataStore, cache *session.KeyCache, opts vault.DeriverOptions, logger logging.Logger) (*Service, error) {
	if records == nil || meta == nil {
		return nil, fmt.Errorf("record and metadata stores are required: %w", apperrors.ErrStorageUnavailable)
	}
	if cache == nil {
		cache = session.NewKeyCache(0)
	}
	deriver, err := vault.NewDeriver(meta, opts, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		records: records,
		meta:    meta,
		salts:   vault.NewSaltStore(meta, logger),
		deriver: deriver,
		cache:   cache,
		logger:  logger,
	}, nil
}

// Open opens the configured vault store and returns a ready service bound to it.
func Open(cfg *config.Config, logger logging.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := db.OpenStore(cfg.Store, cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("open vault store in %s: %w", cfg.Dir, err)
	}
	svc, err := New(st.Records, st.Metadata, session.NewKeyCache(cfg.SessionTTL), cfg.DeriverOptions(), logger.With("store", cfg.Store))
	if err != nil {
		st.Close()
		return nil, err
	}
	svc.closer = st.Close
	logger.Debug(context.Background(), "vault store opened", "path", st.Path)
	return svc, nil
}

// Close locks the vault and releases the store.
func (s *Service) Close() error {
	s.Lock()
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// GetOrCreateSalt returns the vault salt, creating it on first use.
func (s *Service) GetOrCreateSalt(ctx context.Context) ([]byte, error) {
	return s.salts.GetOrCreateSalt(ctx)
}

// DeriveKey derives the password-mode key for (password, salt).
func (s *Service) DeriveKey(ctx context.Context, password string, salt []byte) (*krypto.MasterKey, error) {
	return s.deriver.DeriveKey(ctx, password, salt)
}

// GetFallbackKey returns the quick-mode key.
func (s *Service) GetFallbackKey(ctx context.Context) (*krypto.MasterKey, error) {
	return s.deriver.FallbackKey(ctx)
}

// Encrypt seals plaintext under key.
func (s *Service) Encrypt(plaintext string, key *krypto.MasterKey) (krypto.Envelope, error) {
	return krypto.Encrypt(plaintext, key)
}

// Decrypt opens env with key.
func (s *Service) Decrypt(env krypto.Envelope, key *krypto.MasterKey) (string, error) {
	return krypto.Decrypt(env, key)
}

// ValidateEntry checks one raw import record.
func (s *Service) ValidateEntry(raw json.RawMessage) (vault.VaultEntry, error) {
	return vault.Validate(raw)
}

// Unlock derives the key for password, verifies it against the vault, and
// keeps it in the session cache.
func (s *Service) Unlock(ctx context.Context, password string) error {
	if password == "" {
		return fmt.Errorf("%w: master password cannot be empty", apperrors.ErrInvalidInput)
	}
	salt, err := s.salts.GetOrCreateSalt(ctx)
	if err != nil {
		return err
	}
	key, err := s.deriver.DeriveKey(ctx, password, salt)
	krypto.Zero(salt)
	if err != nil {
		return err
	}
	defer key.Destroy()

	if err := s.verifyKey(ctx, key); err != nil {
		s.logger.Warn(ctx, "unlock rejected")
		return err
	}
	if err := s.cache.Set(key); err != nil {
		return err
	}
	s.logger.Info(ctx, "vault unlocked", "mode", key.Mode())
	return nil
}

// UnlockQuick caches the fallback key. Entries saved while quick-unlocked are
// only as safe as the fallback secret.
func (s *Service) UnlockQuick(ctx context.Context) error {
	key, err := s.deriver.FallbackKey(ctx)
	if err != nil {
		return err
	}
	defer key.Destroy()
	if err := s.cache.Set(key); err != nil {
		return err
	}
	s.logger.Info(ctx, "vault unlocked", "mode", key.Mode())
	return nil
}

// Lock drops the cached key.
func (s *Service) Lock() {
	s.cache.Clear()
}

// Initialized reports whether a master password has been recorded for the vault.
func (s *Service) Initialized(ctx context.Context) (bool, error) {
	raw, err := s.meta.Get(ctx, checkKey)
	if err != nil {
		return false, fmt.Errorf("load key check: %w", storageErr(err))
	}
	return raw != nil, nil
}

// IsUnlocked reports whether a key is cached.
func (s *Service) IsUnlocked() bool { return s.cache.Has() }

// verifyKey checks a password-mode key against the stored check value. A
// vault without one is checked against its first password-mode entry; an
// empty vault accepts the key and records the check value.
func (s *Service) verifyKey(ctx context.Context, key *krypto.MasterKey) error {
	raw, err := s.meta.Get(ctx, checkKey)
	if err != nil {
		return fmt.Errorf("load key check: %w", storageErr(err))
	}
	if raw != nil {
		var env krypto.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("%w: decode key check: %v", apperrors.ErrStorageUnavailable, err)
		}
		got, err := krypto.Decrypt(env, key)
		if err != nil {
			return fmt.Errorf("verify master password: %w", err)
		}
		if got != checkPlaintext {
			return fmt.Errorf("verify master password: %w", apperrors.ErrAuthenticationFailure)
		}
		return nil
	}

	entries, err := s.records.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.KeyMode == krypto.ModeFallback {
			continue
		}
		if _, err := vault.DecryptEntryPassword(key, e); err != nil {
			return fmt.Errorf("verify master password: %w", err)
		}
		break
	}

	data, err := sealCheck(key)
	if err != nil {
		return err
	}
	stored, err := s.meta.SetIfAbsent(ctx, checkKey, data)
	if err != nil {
		return fmt.Errorf("persist key check: %w", storageErr(err))
	}
	if string(stored) != string(data) {
		// Another unlock recorded its check first; verify against that one.
		return s.verifyKey(ctx, key)
	}
	return nil
}

func sealCheck(key *krypto.MasterKey) ([]byte, error) {
	env, err := krypto.Encrypt(checkPlaintext, key)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode key check: %w", err)
	}
	return data, nil
}

// Initialize sets the master password of a vault that has no key check yet
// and leaves the vault unlocked. Existing entries are not consulted: the
// password-mode entries the new key cannot open, such as imports sealed
// under another salt, are returned for the caller to report.
func (s *Service) Initialize(ctx context.Context, password string) ([]vault.EntryID, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: master password cannot be empty", apperrors.ErrInvalidInput)
	}
	if ok, err := s.Initialized(ctx); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: vault already initialized", apperrors.ErrConflict)
	}

	salt, err := s.salts.GetOrCreateSalt(ctx)
	if err != nil {
		return nil, err
	}
	key, err := s.deriver.DeriveKey(ctx, password, salt)
	krypto.Zero(salt)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	data, err := sealCheck(key)
	if err != nil {
		return nil, err
	}
	stored, err := s.meta.SetIfAbsent(ctx, checkKey, data)
	if err != nil {
		return nil, fmt.Errorf("persist key check: %w", storageErr(err))
	}
	if string(stored) != string(data) {
		return nil, fmt.Errorf("%w: vault already initialized", apperrors.ErrConflict)
	}
	if err := s.cache.Set(key); err != nil {
		return nil, err
	}

	entries, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var unreadable []vault.EntryID
	for _, e := range entries {
		if e.KeyMode != krypto.ModePassword {
			continue
		}
		_, err := vault.DecryptEntryPassword(key, e)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrAuthenticationFailure):
			unreadable = append(unreadable, e.ID)
		default:
			return unreadable, err
		}
	}

	s.logger.Info(ctx, "vault initialized", "unreadable", len(unreadable))
	return unreadable, nil
}

// KeyMode reports the mode of the cached key, if any.
func (s *Service) KeyMode() (krypto.KeyMode, bool) { return s.cache.Mode() }

func (s *Service) key() (*krypto.MasterKey, error) {
	key, ok := s.cache.Get()
	if !ok {
		return nil, apperrors.ErrVaultLocked
	}
	return key, nil
}

// SaveEntry encrypts plaintext with the session key and stores a new entry.
func (s *Service) SaveEntry(ctx context.Context, site, username, plaintext string) (vault.VaultEntry, error) {
	key, err := s.key()
	if err != nil {
		return vault.VaultEntry{}, err
	}
	defer key.Destroy()

	entry, err := vault.EncryptEntryPassword(key, site, username, plaintext)
	if err != nil {
		return vault.VaultEntry{}, err
	}
	if err := s.records.Insert(ctx, entry); err != nil {
		return vault.VaultEntry{}, apperrors.Wrap(err, "store entry")
	}
	s.logger.Info(ctx, "entry saved", "id", entry.ID.String(), "mode", entry.KeyMode)
	return entry, nil
}

// RevealPassword decrypts the password of entry id.
func (s *Service) RevealPassword(ctx context.Context, id vault.EntryID) (string, error) {
	key, err := s.key()
	if err != nil {
		return "", err
	}
	defer key.Destroy()

	entry, err := s.records.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return vault.DecryptEntryPassword(key, entry)
}

// ChangePassword re-encrypts entry id with a new password under the session
// key. The entry keeps its id, site, username and pin state.
func (s *Service) ChangePassword(ctx context.Context, id vault.EntryID, newPlaintext string) error {
	key, err := s.key()
	if err != nil {
		return err
	}
	defer key.Destroy()

	entry, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry.KeyMode != key.Mode() {
		return fmt.Errorf("change password of entry %s: %w", id, apperrors.ErrKeyModeMismatch)
	}
	updated, err := vault.ReencryptEntryPassword(key, entry, newPlaintext)
	if err != nil {
		return err
	}
	if err := s.records.Update(ctx, updated); err != nil {
		return apperrors.Wrap(err, "update entry")
	}
	s.logger.Info(ctx, "entry password changed", "id", id.String())
	return nil
}

// TogglePin flips the pinned flag of entry id and returns the new state.
func (s *Service) TogglePin(ctx context.Context, id vault.EntryID) (bool, error) {
	entry, err := s.records.Get(ctx, id)
	if err != nil {
		return false, err
	}
	entry.Pinned = !entry.Pinned
	if err := s.records.Update(ctx, entry); err != nil {
		return false, apperrors.Wrap(err, "update entry")
	}
	return entry.Pinned, nil
}

// DeleteEntry removes entry id.
func (s *Service) DeleteEntry(ctx context.Context, id vault.EntryID) error {
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "entry deleted", "id", id.String())
	return nil
}

// ListEntries returns every entry, pinned first. Passwords stay encrypted.
func (s *Service) ListEntries(ctx context.Context) ([]vault.VaultEntry, error) {
	return s.records.ListAll(ctx)
}

// Search returns entries whose site or username contains query, ignoring case.
// An empty query matches everything.
func (s *Service) Search(ctx context.Context, query string) ([]vault.VaultEntry, error) {
	all, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all, nil
	}
	var out []vault.VaultEntry
	for _, e := range all {
		if strings.Contains(strings.ToLower(e.Site), q) || strings.Contains(strings.ToLower(e.Username), q) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Export serialises every entry in list order. Passwords stay encrypted, so
// the vault needs no key.
func (s *Service) Export(ctx context.Context) ([]byte, error) {
	data, _, err := s.export(ctx)
	return data, err
}

// ExportFile writes the export document to path with owner-only permissions
// and returns the number of entries written.
func (s *Service) ExportFile(ctx context.Context, path string) (int, error) {
	data, n, err := s.export(ctx)
	if err != nil {
		return 0, err
	}
	if err := store.WriteExport(path, data); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Service) export(ctx context.Context) ([]byte, int, error) {
	entries, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	data, err := vault.Serialize(entries)
	if err != nil {
		return nil, 0, err
	}
	s.logger.Info(ctx, "vault exported", "entries", len(entries))
	return data, len(entries), nil
}

// ImportReport summarises an import.
type ImportReport struct {
	Imported int
	// Rejected lists records that failed validation, by position in the file.
	Rejected []vault.Rejection
	// Skipped lists valid records whose id already exists in the vault.
	Skipped []vault.EntryID
}

// Import stores every valid record of an export document. Invalid records and
// ids already present are reported and skipped; they never abort the batch.
func (s *Service) Import(ctx context.Context, data []byte) (ImportReport, error) {
	res, err := vault.Deserialize(data)
	if err != nil {
		return ImportReport{}, err
	}

	report := ImportReport{Rejected: res.Rejected}
	for _, e := range res.Entries {
		err := s.records.Insert(ctx, e)
		switch {
		case err == nil:
			report.Imported++
		case errors.Is(err, apperrors.ErrConflict):
			report.Skipped = append(report.Skipped, e.ID)
		default:
			return report, fmt.Errorf("import entry %s: %w", e.ID, err)
		}
	}

	s.logger.Info(ctx, "vault imported",
		"imported", report.Imported, "rejected", len(report.Rejected), "skipped", len(report.Skipped))
	return report, nil
}

// ImportFile reads an export document from path and imports it.
func (s *Service) ImportFile(ctx context.Context, path string) (ImportReport, error) {
	data, err := store.ReadExport(path)
	if err != nil {
		return ImportReport{}, err
	}
	return s.Import(ctx, data)
}

// Reset deletes every entry and the salt, header and key check, and locks the
// vault. The next unlock starts a new vault.
func (s *Service) Reset(ctx context.Context) error {
	s.Lock()
	if err := s.records.Clear(ctx); err != nil {
		return apperrors.Wrap(err, "clear entries")
	}
	for _, key := range []string{checkKey, vault.HeaderKey} {
		if err := s.meta.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, storageErr(err))
		}
	}
	if err := s.salts.Reset(ctx); err != nil {
		return err
	}
	s.logger.Warn(ctx, "vault reset")
	return nil
}

func storageErr(err error) error {
	if errors.Is(err, apperrors.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", apperrors.ErrStorageUnavailable, err)
}
