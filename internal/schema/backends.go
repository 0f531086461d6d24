package schema

import (
	"sort"

	"github.com/pkg/errors"
)

func text(name string) Field    { return Field{Name: name, Column: Column(name), Kind: String} }
func integer(name string) Field { return Field{Name: name, Column: Column(name), Kind: Int} }
func number(name string) Field  { return Field{Name: name, Column: Column(name), Kind: Float} }
func boolean(name string) Field { return Field{Name: name, Column: Column(name), Kind: Bool} }
func date(name string) Field    { return Field{Name: name, Column: Column(name), Kind: Time} }
func raw(name string) Field     { return Field{Name: name, Column: Column(name), Kind: JSON} }

// ref declares a reference; its kind is filled in from the target's key mode.
func ref(name, target string) Field {
	return Field{Name: name, Column: Column(name), Ref: target}
}

func (f Field) def(v any) Field { f.Default = v; return f }
func (f Field) required() Field { f.Required = true; return f }
func (f Field) clearable() Field { f.Clearable = true; return f }
func (f Field) cascade() Field { f.Cascade = true; return f }
func (f Field) column(c string) Field { f.Column = c; return f }

var durationInvalidation = Invalidation{Triggers: []string{"startDate", "endDate"}, Target: "duration"}

func schedulerEventFields() []Field {
	return []Field{
		text("name").required(),
		date("startDate"),
		date("endDate"),
		boolean("allDay").def(false),
		number("duration"),
		text("durationUnit").def("day"),
		boolean("readOnly").def(false),
		boolean("draggable").def(true),
		text("resizable").def("true"),
		text("timeZone"),
		text("recurrenceRule"),
		raw("exceptionDates"),
		text("children"),
		text("cls"),
		text("eventColor"),
		text("eventStyle"),
		text("iconCls"),
		text("style"),
	}
}

func schedulerResources() *Collection {
	return &Collection{
		Name:     "resources",
		Table:    "resources",
		Title:    "name",
		Singular: "Resource",
		Fields: []Field{
			text("name").required(),
			text("eventColor"),
			boolean("readOnly").def(false),
		},
	}
}

func assignments(eventTarget string) *Collection {
	return &Collection{
		Name:     "assignments",
		Table:    "assignments",
		Singular: "Assignment",
		Fields: []Field{
			ref("eventId", eventTarget).cascade(),
			ref("resourceId", "resources").cascade(),
		},
	}
}

func calendar() *Backend {
	return &Backend{
		Name: "calendar",
		Collections: []*Collection{
			{
				Name:     "events",
				Table:    "events",
				Title:    "name",
				Singular: "Event",
				Fields: []Field{
					text("name").required(),
					date("startDate"),
					date("endDate"),
					boolean("allDay").def(false),
					ref("resourceId", "resources"),
					text("eventColor"),
					boolean("readOnly").def(false),
					text("timeZone"),
					boolean("draggable").def(true),
					text("resizable").def("true"),
					number("duration"),
					text("durationUnit").def("day"),
					raw("exceptionDates"),
					text("recurrenceRule"),
					text("cls"),
					text("eventStyle"),
					text("iconCls"),
					text("style"),
				},
				Invalidations: []Invalidation{durationInvalidation},
			},
			{
				Name:     "resources",
				Table:    "resources",
				KeyMode:  ClientKey,
				Title:    "name",
				Singular: "Resource",
				Fields: []Field{
					text("name").required(),
					text("eventColor"),
					boolean("readOnly").def(false),
				},
			},
		},
	}
}

func scheduler() *Backend {
	return &Backend{
		Name: "scheduler",
		Collections: []*Collection{
			{Name: "events", Table: "events", Title: "name", Singular: "Event", Fields: schedulerEventFields()},
			schedulerResources(),
			assignments("events"),
		},
	}
}

func schedulerPro() *Backend {
	return &Backend{
		Name: "schedulerpro",
		Collections: []*Collection{
			schedulerResources(),
			{Name: "events", Table: "events", Title: "name", Singular: "Event", Fields: schedulerEventFields()},
			assignments("events"),
			{
				Name:     "dependencies",
				Table:    "dependencies",
				Singular: "Dependency",
				Fields: []Field{
					ref("from", "events").column("from_event").cascade(),
					ref("to", "events").column("to_event").cascade(),
					text("fromSide").def("right"),
					text("toSide").def("left"),
					text("cls"),
					number("lag").def(float64(0)),
					text("lagUnit").def("day"),
				},
			},
		},
	}
}

func gantt() *Backend {
	return &Backend{
		Name:       "gantt",
		Revisioned: true,
		Totals:     true,
		Collections: []*Collection{
			{
				Name:     "tasks",
				Table:    "tasks",
				Title:    "name",
				Singular: "Task",
				Parent:   "parentId",
				OrderBy:  []string{"parentId", "parentIndex"},
				Fields: []Field{
					text("name").required(),
					date("startDate"),
					date("endDate"),
					number("duration"),
					number("percentDone"),
					ref("parentId", "tasks").clearable().cascade(),
					integer("parentIndex"),
					boolean("expanded"),
					boolean("rollup"),
					boolean("manuallyScheduled"),
					number("effort"),
				},
			},
			{
				Name:     "dependencies",
				Table:    "dependencies",
				Singular: "Dependency",
				OrderBy:  []string{"id"},
				Fields: []Field{
					ref("fromEvent", "tasks").cascade(),
					ref("toEvent", "tasks").cascade(),
					integer("type").def(int64(2)),
					text("cls"),
					number("lag").def(float64(0)),
					text("lagUnit").def("day"),
					boolean("active").def(true),
					text("fromSide"),
					text("toSide"),
				},
			},
		},
	}
}

func taskBoard() *Backend {
	return &Backend{
		Name: "taskboard",
		Collections: []*Collection{
			{
				Name:     "tasks",
				Table:    "tasks",
				Title:    "name",
				Singular: "Task",
				Fields: []Field{
					text("name").required(),
					text("eventColor"),
					text("description"),
					integer("weight").def(int64(1)),
					text("status"),
					text("prio"),
				},
			},
			{
				Name:     "resources",
				Table:    "resources",
				Title:    "name",
				Singular: "Resource",
				Fields:   []Field{text("name").required()},
			},
			assignments("tasks"),
		},
	}
}

func grid() *Backend {
	return &Backend{
		Name: "grid",
		CRUD: true,
		Collections: []*Collection{
			{
				Name:     "players",
				Table:    "players",
				Title:    "name",
				Singular: "Player",
				Fields: []Field{
					text("name").required(),
					text("city"),
					text("team"),
					number("score").def(float64(0)),
					number("percentageWins").def(float64(0)),
				},
			},
		},
	}
}

// link fills in reference kinds from the target collections' key modes.
func link(b *Backend) *Backend {
	for _, c := range b.Collections {
		for i, f := range c.Fields {
			if !f.IsRef() || f.Kind != 0 {
				continue
			}
			if target, ok := b.Collection(f.Ref); ok {
				c.Fields[i].Kind = target.KeyKind()
			}
		}
	}
	return b
}

var builders = map[string]func() *Backend{
	"calendar":     calendar,
	"gantt":        gantt,
	"grid":         grid,
	"scheduler":    scheduler,
	"schedulerpro": schedulerPro,
	"taskboard":    taskBoard,
}

// Lookup returns a fresh, validated definition of the named backend.
func Lookup(name string) (*Backend, error) {
	build, ok := builders[name]
	if !ok {
		return nil, errors.Errorf("unknown backend %q", name)
	}
	b := link(build())
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Names lists the known backends in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
