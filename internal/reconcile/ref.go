package reconcile

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
	"github.com/ritza-co/bryntum-backend-guides/internal/store"
)

type refKind int

const (
	refNull refKind = iota
	refPermanent
	refPhantom
)

// Ref is the value of a reference field: a permanent key, a phantom id of a
// row created earlier in the same request, or null.
type Ref struct {
	kind  refKind
	key   store.Key
	token string
	// fallback marks string-keyed targets, where an unregistered token is
	// taken as the permanent key itself.
	fallback bool
}

// Permanent references an existing row.
func Permanent(key store.Key) Ref { return Ref{kind: refPermanent, key: key} }

// Phantom references a row created in the same request.
func Phantom(token string) Ref { return Ref{kind: refPhantom, token: token} }

// IsNull reports whether the client sent null or an empty reference.
func (r Ref) IsNull() bool { return r.kind == refNull }

// Resolve returns the permanent key the reference points at. Unknown
// phantom ids and invalid keys do not resolve.
func (r Ref) Resolve(reg *Registry, target string) (store.Key, bool) {
	switch r.kind {
	case refPermanent:
		return r.key, r.key.Valid()
	case refPhantom:
		if key, ok := reg.Resolve(target, r.token); ok {
			return key, true
		}
		if r.fallback {
			key := store.StringKey(r.token)
			return key, key.Valid()
		}
	}
	return store.Key{}, false
}

func (r Ref) String() string {
	switch r.kind {
	case refPermanent:
		return r.key.String()
	case refPhantom:
		return r.token
	default:
		return "null"
	}
}

// parseRef reads a reference whose target keys are of the given kind.
func parseRef(raw json.RawMessage, keyKind schema.Kind) (Ref, error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return Ref{}, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Ref{}, malformed("invalid string %s", raw)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return Ref{}, nil
		}
		if keyKind == schema.String {
			return Ref{kind: refPhantom, token: s, fallback: true}, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Permanent(store.IntKey(n)), nil
		}
		return Phantom(s), nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		if keyKind == schema.String {
			return Permanent(store.StringKey(string(raw))), nil
		}
		n, err := parseInteger(raw)
		if err != nil {
			return Ref{}, err
		}
		return Permanent(store.IntKey(n)), nil
	}
	return Ref{}, malformed("reference must be a number or a string, got %s", raw)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// parseInteger accepts integral JSON numbers, including forms like 3.0.
func parseInteger(raw json.RawMessage) (int64, error) {
	if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f != float64(int64(f)) {
		return 0, malformed("%s is not an integer", raw)
	}
	return int64(f), nil
}
