package store

import (
	"encoding/json"
	"strconv"
)

// Key is a primary key: an integer assigned by the store or a string chosen
// by the client. The zero Key is "no key".
type Key struct {
	id  int64
	str string
	isS bool
}

// IntKey returns an integer key.
func IntKey(id int64) Key { return Key{id: id} }

// StringKey returns a string key.
func StringKey(s string) Key { return Key{str: s, isS: true} }

// KeyOf converts a stored key value (int64 or string) back into a Key.
func KeyOf(v any) (Key, bool) {
	switch x := v.(type) {
	case int64:
		return IntKey(x), true
	case int:
		return IntKey(int64(x)), true
	case string:
		return StringKey(x), true
	default:
		return Key{}, false
	}
}

// Valid reports whether the key can address a row: a positive integer or a
// non-empty string.
func (k Key) Valid() bool {
	if k.isS {
		return k.str != ""
	}
	return k.id > 0
}

// IsString reports whether the key is a string key.
func (k Key) IsString() bool { return k.isS }

// Int returns the integer form of the key, or 0 for string keys.
func (k Key) Int() int64 {
	if k.isS {
		return 0
	}
	return k.id
}

// Value is the key as a record field value: int64 or string.
func (k Key) Value() any {
	if k.isS {
		return k.str
	}
	return k.id
}

func (k Key) String() string {
	if k.isS {
		return k.str
	}
	return strconv.FormatInt(k.id, 10)
}

// MarshalJSON encodes integer keys as numbers and string keys as strings.
func (k Key) MarshalJSON() ([]byte, error) {
	if k.isS {
		return json.Marshal(k.str)
	}
	return []byte(strconv.FormatInt(k.id, 10)), nil
}
