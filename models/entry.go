package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// EntryKey identity of one entry within a store partition.
//
// A key is either numeric (a local placeholder auto-assigned by the store) or a string
// (an identifier issued by the remote server). The zero value is an unset key.
type EntryKey struct {
	num     uint64
	str     string
	numeric bool
}

// NumericKey define a numeric entry key
func NumericKey(n uint64) EntryKey {
	return EntryKey{num: n, numeric: true}
}

// StringKey define a string entry key
func StringKey(s string) EntryKey {
	return EntryKey{str: s}
}

// IsZero whether the key is unset
func (k EntryKey) IsZero() bool {
	return !k.numeric && k.str == ""
}

// IsNumeric whether the key is a local numeric placeholder
func (k EntryKey) IsNumeric() bool {
	return k.numeric
}

// Numeric the numeric value of the key; zero for string keys
func (k EntryKey) Numeric() uint64 {
	return k.num
}

// String human readable form of the key
func (k EntryKey) String() string {
	if k.numeric {
		return strconv.FormatUint(k.num, 10)
	}
	return k.str
}

// Encode the persisted form of the key; numeric and string keys never collide
func (k EntryKey) Encode() string {
	if k.numeric {
		return "n:" + strconv.FormatUint(k.num, 10)
	}
	return "s:" + k.str
}

/*
ParseEntryKey parse the persisted form of an entry key

	@param encoded string - output of EntryKey.Encode
	@returns the key
*/
func ParseEntryKey(encoded string) (EntryKey, error) {
	kind, value, ok := strings.Cut(encoded, ":")
	if !ok {
		return EntryKey{}, fmt.Errorf("malformed entry key '%s'", encoded)
	}
	switch kind {
	case "n":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return EntryKey{}, fmt.Errorf("malformed numeric entry key '%s' [%w]", encoded, err)
		}
		return NumericKey(n), nil
	case "s":
		if value == "" {
			return EntryKey{}, fmt.Errorf("empty string entry key")
		}
		return StringKey(value), nil
	}
	return EntryKey{}, fmt.Errorf("unknown entry key kind in '%s'", encoded)
}

// MarshalJSON numeric keys encode as JSON numbers, string keys as JSON strings
func (k EntryKey) MarshalJSON() ([]byte, error) {
	if k.numeric {
		return []byte(strconv.FormatUint(k.num, 10)), nil
	}
	if k.str == "" {
		return []byte("null"), nil
	}
	return json.Marshal(k.str)
}

// UnmarshalJSON accepts a JSON number, a JSON string, or null
func (k *EntryKey) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*k = EntryKey{}
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = StringKey(s)
		return nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("entry key '%s' is neither string nor unsigned integer [%w]", raw, err)
	}
	*k = NumericKey(n)
	return nil
}

// MarshalYAML render the key as its human readable form
func (k EntryKey) MarshalYAML() (interface{}, error) {
	if k.numeric {
		return k.num, nil
	}
	return k.str, nil
}

// StoreEntry one encrypted value stored within a named partition
type StoreEntry struct {
	// Seq insertion sequence; also the source of auto-assigned numeric keys
	Seq uint64 `json:"seq" gorm:"column:seq;primaryKey;autoIncrement"`

	// Partition the partition (store) name
	Partition string `json:"partition" gorm:"column:partition_name;not null;uniqueIndex:idx_partition_entry_key" validate:"required"`

	// EntryKey the encoded entry key
	EntryKey string `json:"entry_key" gorm:"column:entry_key;not null;uniqueIndex:idx_partition_entry_key" validate:"required"`

	// IndexValues plain text values of the partition's declared secondary indexes
	IndexValues datatypes.JSONMap `json:"index_values,omitempty" gorm:"column:index_values"`

	// EncKeyID the symmetric encryption key which encrypted this entry
	EncKeyID string `json:"enc_key_id" gorm:"column:enc_key_id;not null;" validate:"required,uuid_rfc4122"`

	// EncValue the symmetrically encrypted value
	EncValue []byte `json:"enc_value" gorm:"column:enc_value;not null;" validate:"required"`
	// EncNonce the encryption nonce used
	EncNonce []byte `json:"enc_nonce" gorm:"column:enc_nonce;not null;" validate:"required"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// Key parse the entry key
func (e StoreEntry) Key() (EntryKey, error) {
	return ParseEntryKey(e.EntryKey)
}

// MetaEntry one plain text metadata value
type MetaEntry struct {
	// Key metadata key
	Key string `json:"key" gorm:"column:meta_key;primaryKey" validate:"required"`
	// Value metadata value
	Value string `json:"value" gorm:"column:meta_value;not null"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}
