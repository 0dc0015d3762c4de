package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Hussein-Mazeh/passvault/krypto"
)

// EntryID identifies a VaultEntry. Ids imported from the browser extension are
// JSON numbers (millisecond timestamps); ids created here are UUID strings.
// The original JSON form is kept so exports reproduce it exactly.
type EntryID struct {
	value   string
	numeric bool
}

// NewEntryID returns a fresh random id.
func NewEntryID() EntryID {
	return EntryID{value: uuid.NewString()}
}

// StringID wraps an arbitrary string id.
func StringID(s string) EntryID { return EntryID{value: s} }

// NumericID wraps an integer id.
func NumericID(n int64) EntryID {
	return EntryID{value: strconv.FormatInt(n, 10), numeric: true}
}

// ParseEntryID interprets user input: all-digit input is a numeric id.
func ParseEntryID(s string) EntryID {
	s = strings.TrimSpace(s)
	if s != "" && strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) == -1 {
		return EntryID{value: s, numeric: true}
	}
	return EntryID{value: s}
}

func (id EntryID) String() string  { return id.value }
func (id EntryID) IsZero() bool    { return id.value == "" }
func (id EntryID) IsNumeric() bool { return id.numeric }

// Key is the storage key: the id's canonical JSON text, so numeric 1 and
// string "1" never collide.
func (id EntryID) Key() string {
	b, _ := id.MarshalJSON()
	return string(b)
}

// ParseEntryKey reverses Key.
func ParseEntryKey(key string) (EntryID, error) {
	var id EntryID
	if err := id.UnmarshalJSON([]byte(key)); err != nil {
		return EntryID{}, err
	}
	return id, nil
}

func (id EntryID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

func (id *EntryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty id")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = EntryID{value: s}
		return nil
	}
	if data[0] != '-' && (data[0] < '0' || data[0] > '9') {
		return fmt.Errorf("id must be a number or string")
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = EntryID{value: n.String(), numeric: true}
	return nil
}

// ByteArray encodes as a JSON array of byte values rather than base64, which
// is how the extension stored Uint8Array contents.
type ByteArray []byte

func (b ByteArray) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(b)*4 + 2)
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(v)))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (b *ByteArray) UnmarshalJSON(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("expected an array of byte values: %w", err)
	}
	out := make(ByteArray, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("value %d at index %d is not a byte", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// VaultEntry is one stored credential. EncryptedPassword and IV always come
// from the same encryption call.
type VaultEntry struct {
	ID                EntryID
	Site              string
	Username          string
	EncryptedPassword []byte
	IV                []byte
	Pinned            bool
	KeyMode           krypto.KeyMode
}

// Envelope reassembles the cipher envelope the entry was built from.
func (e VaultEntry) Envelope() krypto.Envelope {
	mode := e.KeyMode
	if mode == "" {
		mode = krypto.ModePassword
	}
	return krypto.Envelope{Nonce: e.IV, Ciphertext: e.EncryptedPassword, Mode: mode}
}
