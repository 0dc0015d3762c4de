package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	validation "github.com/jellydator/validation"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

// exportRecord is the wire shape of one entry in an export file. keyMode is
// only written for quick-mode entries so password-only exports match the
// extension's format exactly.
type exportRecord struct {
	ID                EntryID   `json:"id"`
	Site              string    `json:"site"`
	Username          string    `json:"username"`
	EncryptedPassword ByteArray `json:"encryptedPassword"`
	IV                ByteArray `json:"iv"`
	Pinned            bool      `json:"pinned"`
	KeyMode           string    `json:"keyMode,omitempty"`
}

// candidate is an import record before validation. Pointers tell a missing
// field apart from a zero one.
type candidate struct {
	ID                *EntryID   `json:"id"`
	Site              *string    `json:"site"`
	Username          *string    `json:"username"`
	EncryptedPassword *ByteArray `json:"encryptedPassword"`
	IV                *ByteArray `json:"iv"`
	Pinned            *bool      `json:"pinned"`
	KeyMode           *string    `json:"keyMode"`
}

func (c candidate) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.By(requireID)),
		validation.Field(&c.Site, validation.Required),
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.EncryptedPassword, validation.Required, validation.Length(krypto.TagSize, 0)),
		validation.Field(&c.IV, validation.Required, validation.Length(krypto.NonceSize, krypto.NonceSize)),
		validation.Field(&c.KeyMode, validation.In(string(krypto.ModePassword), string(krypto.ModeFallback))),
	)
}

// requireID rejects missing, empty and numerically zero ids, which the
// extension treats as absent.
func requireID(value interface{}) error {
	id, _ := value.(*EntryID)
	if id == nil || id.IsZero() {
		return validation.ErrRequired
	}
	if id.IsNumeric() {
		if f, err := strconv.ParseFloat(id.String(), 64); err == nil && f == 0 {
			return validation.ErrRequired
		}
	}
	return nil
}

// Validate checks one raw import record. Anything short of a complete record
// is ErrMalformedEntry; nothing is partially accepted.
func Validate(raw json.RawMessage) (VaultEntry, error) {
	var c candidate
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&c); err != nil {
		return VaultEntry{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedEntry, err)
	}
	if err := c.Validate(); err != nil {
		return VaultEntry{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedEntry, err)
	}

	mode := krypto.ModePassword
	if c.KeyMode != nil {
		m, err := krypto.ParseKeyMode(*c.KeyMode)
		if err != nil {
			return VaultEntry{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedEntry, err)
		}
		mode = m
	}

	entry := VaultEntry{
		ID:                *c.ID,
		Site:              *c.Site,
		Username:          *c.Username,
		EncryptedPassword: []byte(*c.EncryptedPassword),
		IV:                []byte(*c.IV),
		KeyMode:           mode,
	}
	if c.Pinned != nil {
		entry.Pinned = *c.Pinned
	}
	return entry, nil
}

// Rejection reports one import record that failed validation.
type Rejection struct {
	Index int
	Err   error
}

// ImportResult holds the accepted entries in input order and the rejected
// records by position.
type ImportResult struct {
	Entries  []VaultEntry
	Rejected []Rejection
}

// Serialize encodes entries as an export document, preserving order.
func Serialize(entries []VaultEntry) ([]byte, error) {
	records := make([]exportRecord, 0, len(entries))
	for _, e := range entries {
		rec := exportRecord{
			ID:                e.ID,
			Site:              e.Site,
			Username:          e.Username,
			EncryptedPassword: ByteArray(e.EncryptedPassword),
			IV:                ByteArray(e.IV),
			Pinned:            e.Pinned,
		}
		if e.KeyMode == krypto.ModeFallback {
			rec.KeyMode = string(krypto.ModeFallback)
		}
		records = append(records, rec)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Deserialize decodes an export document. Each element is validated on its
// own; only a document that is not a JSON array fails as a whole.
func Deserialize(data []byte) (ImportResult, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return ImportResult{}, fmt.Errorf("%w: export must be a JSON array: %v", apperrors.ErrMalformedEntry, err)
	}

	var res ImportResult
	for i, raw := range raws {
		entry, err := Validate(raw)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Err: err})
			continue
		}
		res.Entries = append(res.Entries, entry)
	}
	return res, nil
}
