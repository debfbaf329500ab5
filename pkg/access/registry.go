package access

import (
	"fmt"
	"sort"
)

// Mode is a type of access to a database row
type Mode string

const (
	ModeCreate Mode = "create"
	ModeRead   Mode = "read"
	ModeUpdate Mode = "update"
	ModeDelete Mode = "delete"
)

// Modes lists all access modes
func Modes() []Mode {
	return []Mode{ModeCreate, ModeRead, ModeUpdate, ModeDelete}
}

// RelKind describes how a relationship is joined
type RelKind int

const (
	// BelongsTo joins through a foreign-key column on the source table
	BelongsTo RelKind = iota
	// HasMany joins through a foreign-key column on the target table
	HasMany
	// ManyToMany joins through an intermediate join table
	ManyToMany
)

// Relationship is a named edge from one entity to another. Policy
// compilation consults relationships to build JOIN chains; the registry
// replaces runtime ORM reflection with metadata the application populates
// at boot.
type Relationship struct {
	Name   string
	Target string
	Kind   RelKind

	// LocalColumn is the FK column on the source table (BelongsTo)
	LocalColumn string
	// RemoteColumn is the FK column on the target table (HasMany)
	RemoteColumn string
	// Join table wiring (ManyToMany)
	JoinTable        string
	JoinSourceColumn string
	JoinTargetColumn string
}

// EntitySpec declares an entity for registration. Policies left nil take
// the defaults: public for create/read, restricted for update/delete.
type EntitySpec struct {
	Name  string
	Table string

	Create Policy
	Read   Policy
	Update Policy
	Delete Policy

	Relationships []Relationship
}

// Entity is a registered entity type. The primary key column is always "id".
type Entity struct {
	name     string
	table    string
	policies map[Mode]Policy
	rels     map[string]Relationship
}

// Name returns the entity name
func (e *Entity) Name() string { return e.name }

// Table returns the entity's table name
func (e *Entity) Table() string { return e.table }

// Policy returns the policy attached for an access mode
func (e *Entity) Policy(mode Mode) Policy { return e.policies[mode] }

// SetPolicy replaces the policy for an access mode
func (e *Entity) SetPolicy(mode Mode, p Policy) { e.policies[mode] = p }

// Relationship looks up a named relationship
func (e *Entity) Relationship(name string) (Relationship, bool) {
	r, ok := e.rels[name]
	return r, ok
}

// Registry maps entity names to their metadata. It is populated once at
// boot and read-only afterwards, so lookups need no locking.
type Registry struct {
	entities map[string]*Entity
}

// NewRegistry creates an empty entity registry
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Register adds an entity to the registry
func (r *Registry) Register(spec EntitySpec) (*Entity, error) {
	if spec.Name == "" || spec.Table == "" {
		return nil, fmt.Errorf("entity registration requires a name and a table, got name=%q table=%q", spec.Name, spec.Table)
	}
	if _, exists := r.entities[spec.Name]; exists {
		return nil, fmt.Errorf("entity %q is already registered", spec.Name)
	}

	e := &Entity{
		name:  spec.Name,
		table: spec.Table,
		policies: map[Mode]Policy{
			ModeCreate: spec.Create,
			ModeRead:   spec.Read,
			ModeUpdate: spec.Update,
			ModeDelete: spec.Delete,
		},
		rels: make(map[string]Relationship, len(spec.Relationships)),
	}
	if e.policies[ModeCreate] == nil {
		e.policies[ModeCreate] = Public()
	}
	if e.policies[ModeRead] == nil {
		e.policies[ModeRead] = Public()
	}
	if e.policies[ModeUpdate] == nil {
		e.policies[ModeUpdate] = Restricted()
	}
	if e.policies[ModeDelete] == nil {
		e.policies[ModeDelete] = Restricted()
	}

	for _, rel := range spec.Relationships {
		if rel.Name == "" || rel.Target == "" {
			return nil, fmt.Errorf("entity %q: relationship requires a name and a target", spec.Name)
		}
		if _, dup := e.rels[rel.Name]; dup {
			return nil, fmt.Errorf("entity %q: duplicate relationship %q", spec.Name, rel.Name)
		}
		e.rels[rel.Name] = rel
	}

	r.entities[spec.Name] = e
	return e, nil
}

// MustRegister registers an entity or panics. Registration happens at boot;
// a malformed spec is a programming error.
func (r *Registry) MustRegister(spec EntitySpec) *Entity {
	e, err := r.Register(spec)
	if err != nil {
		panic(err)
	}
	return e
}

// Entity looks up a registered entity by name
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Names returns the sorted names of all registered entities
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every relationship points at a registered entity.
// Call after boot-time registration is complete.
func (r *Registry) Validate() error {
	for _, name := range r.Names() {
		e := r.entities[name]
		for relName, rel := range e.rels {
			if _, ok := r.entities[rel.Target]; !ok {
				return fmt.Errorf("entity %q: relationship %q targets unregistered entity %q",
					name, relName, rel.Target)
			}
			switch rel.Kind {
			case BelongsTo:
				if rel.LocalColumn == "" {
					return fmt.Errorf("entity %q: belongs-to relationship %q requires a local column", name, relName)
				}
			case HasMany:
				if rel.RemoteColumn == "" {
					return fmt.Errorf("entity %q: has-many relationship %q requires a remote column", name, relName)
				}
			case ManyToMany:
				if rel.JoinTable == "" || rel.JoinSourceColumn == "" || rel.JoinTargetColumn == "" {
					return fmt.Errorf("entity %q: many-to-many relationship %q requires join table wiring", name, relName)
				}
			}
		}
	}
	return nil
}
