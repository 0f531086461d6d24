package reconcile

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
	"github.com/ritza-co/bryntum-backend-guides/internal/store"
)

// row is a decoded Patch. fields and refs hold only what the client sent;
// a nil entry in fields is an explicit null.
type row struct {
	key     store.Key
	phantom string
	fields  map[string]any
	refs    map[string]Ref
}

// Lookup reports the decoded value of a sent non-reference field.
func (r row) Lookup(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// decodeRow validates p against the collection. Unknown names are ignored.
func decodeRow(c *schema.Collection, p Patch) (row, error) {
	r := row{
		phantom: p.PhantomID(),
		fields:  make(map[string]any),
		refs:    make(map[string]Ref),
	}
	if raw, ok := p.Lookup("id"); ok {
		r.key = parseKey(c.KeyMode, raw)
	}
	for _, f := range c.Fields {
		raw, ok := p.Lookup(f.Name)
		if !ok {
			continue
		}
		if f.IsRef() {
			ref, err := parseRef(raw, f.Kind)
			if err != nil {
				return row{}, malformed("%s.%s: %v", c.Name, f.Name, err)
			}
			r.refs[f.Name] = ref
			continue
		}
		v, err := decodeValue(f.Kind, raw)
		if err != nil {
			return row{}, malformed("%s.%s: %v", c.Name, f.Name, err)
		}
		r.fields[f.Name] = v
	}
	return r, nil
}

// decodeKeyRow reads only the key of a removed row.
func decodeKeyRow(c *schema.Collection, p Patch) row {
	raw, _ := p.Lookup("id")
	return row{key: parseKey(c.KeyMode, raw)}
}

// parseKey never fails: values that cannot name a row yield the zero Key.
func parseKey(mode schema.KeyMode, raw json.RawMessage) store.Key {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return store.Key{}
	}
	if mode == schema.ClientKey {
		var s string
		if raw[0] == '"' {
			if err := json.Unmarshal(raw, &s); err != nil {
				return store.Key{}
			}
			return store.StringKey(strings.TrimSpace(s))
		}
		if _, err := strconv.ParseFloat(string(raw), 64); err == nil {
			return store.StringKey(string(raw))
		}
		return store.Key{}
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return store.Key{}
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return store.Key{}
		}
		return store.IntKey(n)
	}
	n, err := parseInteger(raw)
	if err != nil {
		return store.Key{}
	}
	return store.IntKey(n)
}

// decodeValue converts a raw JSON value into the canonical type of kind.
// JSON null decodes to nil.
func decodeValue(kind schema.Kind, raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return nil, nil
	}
	var str string
	quoted := raw[0] == '"'
	if quoted {
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, malformed("invalid string %s", raw)
		}
	}
	numeric := raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')
	boolean := string(raw) == "true" || string(raw) == "false"

	switch kind {
	case schema.String:
		switch {
		case quoted:
			return str, nil
		case numeric, boolean:
			return string(raw), nil
		}
	case schema.Int:
		switch {
		case numeric:
			return parseInteger(raw)
		case quoted && strings.TrimSpace(str) == "":
			return nil, nil
		case quoted:
			n, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
			if err != nil {
				return nil, malformed("%q is not an integer", str)
			}
			return n, nil
		}
	case schema.Float:
		switch {
		case numeric:
			return strconv.ParseFloat(string(raw), 64)
		case quoted && strings.TrimSpace(str) == "":
			return nil, nil
		case quoted:
			f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
			if err != nil {
				return nil, malformed("%q is not a number", str)
			}
			return f, nil
		}
	case schema.Bool:
		switch {
		case boolean:
			return string(raw) == "true", nil
		case quoted:
			b, err := strconv.ParseBool(strings.TrimSpace(str))
			if err != nil {
				return nil, malformed("%q is not a boolean", str)
			}
			return b, nil
		}
	case schema.Time:
		if quoted {
			if strings.TrimSpace(str) == "" {
				return nil, nil
			}
			t, err := schema.ParseTime(str)
			if err != nil {
				return nil, malformed("%v", err)
			}
			return t, nil
		}
	case schema.JSON:
		if quoted {
			if json.Valid([]byte(str)) {
				return compact([]byte(str)), nil
			}
			return json.RawMessage(append([]byte(nil), raw...)), nil
		}
		return compact(raw), nil
	}
	return nil, malformed("cannot use %s as %s", raw, kind)
}

func compact(raw []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return json.RawMessage(append([]byte(nil), raw...))
	}
	return json.RawMessage(buf.Bytes())
}
