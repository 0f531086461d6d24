// Package schema describes the collections a backend synchronizes: their
// fields, key spaces, cross-collection references and snapshot ordering.
package schema

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Kind is the storage type of a field value.
type Kind int

const (
	String Kind = iota + 1
	Int
	Float
	Bool
	Time
	JSON
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Time:
		return "time"
	case JSON:
		return "json"
	default:
		return "unknown"
	}
}

// KeyMode says who chooses a collection's primary key.
type KeyMode int

const (
	// ServerKey keys are integers assigned by the store on insert.
	ServerKey KeyMode = iota
	// ClientKey keys are strings chosen by the client, generated when absent.
	ClientKey
)

// Field describes one column of a collection.
type Field struct {
	Name   string // wire name
	Column string
	Kind   Kind
	// Default is stored on insert when the client did not send the field.
	Default any
	// Required fields are coerced to their zero value on insert when absent or null.
	Required bool
	// Clearable fields accept an explicit null on update.
	Clearable bool
	// Ref names the collection this field points at.
	Ref string
	// Cascade deletes this row when the referenced row is deleted.
	Cascade bool
}

// IsRef reports whether the field references another row.
func (f Field) IsRef() bool {
	return f.Ref != ""
}

// Invalidation clears Target when any Trigger is written by an update that
// does not also write Target.
type Invalidation struct {
	Triggers []string
	Target   string
}

// Collection is one synchronized entity type.
type Collection struct {
	Name    string // wire key, e.g. "events"
	Table   string
	KeyMode KeyMode
	Fields  []Field
	// Parent is the self-referencing field that forms a hierarchy.
	Parent string
	// OrderBy lists the snapshot sort fields; "id" sorts by key. Nulls sort first.
	OrderBy       []string
	Invalidations []Invalidation
	// Title is the display-name field used for search, empty for link collections.
	Title string
	// Singular names one row in user-facing messages.
	Singular string
}

// Field returns the field with the given wire name.
func (c *Collection) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Refs returns the reference fields in declaration order.
func (c *Collection) Refs() []Field {
	var refs []Field
	for _, f := range c.Fields {
		if f.IsRef() {
			refs = append(refs, f)
		}
	}
	return refs
}

// KeyKind is the kind of the collection's primary key.
func (c *Collection) KeyKind() Kind {
	if c.KeyMode == ClientKey {
		return String
	}
	return Int
}

// Dependent is a field of Collection that references another collection.
type Dependent struct {
	Collection *Collection
	Field      Field
}

// Backend is a set of collections synchronized together by one endpoint pair.
type Backend struct {
	Name        string
	Collections []*Collection
	// Revisioned backends report a monotonic revision with snapshots and syncs.
	Revisioned bool
	// Totals adds a row count to every snapshot block.
	Totals bool
	// CRUD backends are served through read/create/update/delete calls
	// instead of load/sync.
	CRUD bool
}

// Collection returns the collection with the given wire name.
func (b *Backend) Collection(name string) (*Collection, bool) {
	for _, c := range b.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Dependents lists the cascading fields that reference target, in declaration order.
func (b *Backend) Dependents(target string) []Dependent {
	var deps []Dependent
	for _, c := range b.Collections {
		for _, f := range c.Fields {
			if f.Ref == target && f.Cascade {
				deps = append(deps, Dependent{Collection: c, Field: f})
			}
		}
	}
	return deps
}

// Order returns the collections so that every referenced collection comes
// before the collections referencing it. Self references are ignored and
// declaration order breaks ties.
func (b *Backend) Order() ([]*Collection, error) {
	placed := make(map[string]bool, len(b.Collections))
	ordered := make([]*Collection, 0, len(b.Collections))
	for len(ordered) < len(b.Collections) {
		progressed := false
		for _, c := range b.Collections {
			if placed[c.Name] || !refsPlaced(c, placed) {
				continue
			}
			placed[c.Name] = true
			ordered = append(ordered, c)
			progressed = true
			break
		}
		if !progressed {
			var pending []string
			for _, c := range b.Collections {
				if !placed[c.Name] {
					pending = append(pending, c.Name)
				}
			}
			return nil, errors.Errorf("backend %s: reference cycle between %s", b.Name, strings.Join(pending, ", "))
		}
	}
	return ordered, nil
}

func refsPlaced(c *Collection, placed map[string]bool) bool {
	for _, f := range c.Refs() {
		if f.Ref != c.Name && !placed[f.Ref] {
			return false
		}
	}
	return true
}

// Validate checks that references point at known collections and that
// hierarchy and ordering fields exist.
func (b *Backend) Validate() error {
	if len(b.Collections) == 0 {
		return errors.Errorf("backend %s: no collections", b.Name)
	}
	seen := make(map[string]bool, len(b.Collections))
	for _, c := range b.Collections {
		if seen[c.Name] {
			return errors.Errorf("backend %s: duplicate collection %s", b.Name, c.Name)
		}
		seen[c.Name] = true
	}
	for _, c := range b.Collections {
		for _, f := range c.Fields {
			if f.Name == "id" {
				return errors.Errorf("%s.%s: id is reserved for the key", c.Name, f.Name)
			}
			if !f.IsRef() {
				continue
			}
			target, ok := b.Collection(f.Ref)
			if !ok {
				return errors.Errorf("%s.%s: unknown collection %s", c.Name, f.Name, f.Ref)
			}
			if f.Kind != target.KeyKind() {
				return errors.Errorf("%s.%s: kind %s does not match %s keys", c.Name, f.Name, f.Kind, target.Name)
			}
		}
		if c.Parent != "" {
			f, ok := c.Field(c.Parent)
			if !ok || f.Ref != c.Name {
				return errors.Errorf("%s: parent field %s must reference %s", c.Name, c.Parent, c.Name)
			}
		}
		for _, name := range c.OrderBy {
			if name == "id" {
				continue
			}
			if _, ok := c.Field(name); !ok {
				return errors.Errorf("%s: unknown order field %s", c.Name, name)
			}
		}
		for _, inv := range c.Invalidations {
			for _, name := range append([]string{inv.Target}, inv.Triggers...) {
				if _, ok := c.Field(name); !ok {
					return errors.Errorf("%s: unknown invalidation field %s", c.Name, name)
				}
			}
		}
	}
	_, err := b.Order()
	return err
}

// Column converts a camelCase wire name to its snake_case column name.
func Column(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
