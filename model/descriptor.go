// Package model describes the external, consumed shape of a mapped type:
// its table, columns, shard keys, optimistic-lock column, default scope,
// associations, and lifecycle callback table. The core never constructs
// these; it only reads them.
package model

// ColumnDescriptor describes one mapped column.
type ColumnDescriptor struct {
	Name     string
	SQLType  string
	Nullable bool
	PK       bool
	Auto     bool
}

// AssociationPath is an opaque eager-load path; resolution happens above
// the core.
type AssociationPath string

// CallbackFunc is one lifecycle hook implementation. It receives the
// instance as an opaque value; the core never inspects it directly, only
// threads it through in lifecycle order.
type CallbackFunc func(instance interface{}) error

// CallbackKind names the points in the write lifecycle a callback may
// attach to. Order is fixed; see CallbackOrder.
type CallbackKind string

const (
	BeforeValidation CallbackKind = "before_validation"
	AfterValidation  CallbackKind = "after_validation"
	BeforeSave       CallbackKind = "before_save"
	BeforeCreate     CallbackKind = "before_create"
	BeforeUpdate     CallbackKind = "before_update"
	AfterCreate      CallbackKind = "after_create"
	AfterUpdate      CallbackKind = "after_update"
	AfterSave        CallbackKind = "after_save"
	AfterCommit      CallbackKind = "after_commit"
	AfterRollback    CallbackKind = "after_rollback"
)

// CallbackOrder is the fixed firing order around a write, per §4.15.
// Create and update variants are mutually exclusive at a given write;
// callers select the pair matching the operation.
var CallbackOrder = []CallbackKind{
	BeforeValidation, AfterValidation, BeforeSave,
	BeforeCreate, BeforeUpdate,
	AfterCreate, AfterUpdate, AfterSave,
	AfterCommit, AfterRollback,
}

// Descriptor is the consumed shape of a mapped model: everything the core
// needs to route, lock, and assemble SQL for instances of this type,
// without knowing anything about validation or association semantics.
type Descriptor struct {
	Name              string
	Table             string
	Columns           []ColumnDescriptor
	PrimaryKey        []string
	ShardKeyColumns   []string
	LockVersionColumn string // empty if the model does not use optimistic locking
	DefaultScope       func(interface{}) interface{}
	Associations      []AssociationPath
	Callbacks         map[CallbackKind][]CallbackFunc
	LagThreshold       int64 // nanoseconds; 0 means "use registry default"
	StickyDuration     int64 // nanoseconds; 0 means "use registry default"
}

// HasShardKeys reports whether this model participates in sharding at all.
func (d *Descriptor) HasShardKeys() bool {
	return len(d.ShardKeyColumns) > 0
}

// IsShardKeyColumn reports whether col participates in shard resolution.
func (d *Descriptor) IsShardKeyColumn(col string) bool {
	for _, c := range d.ShardKeyColumns {
		if c == col {
			return true
		}
	}
	return false
}

// RunCallbacks invokes every callback registered for kind, in registration
// order, stopping and returning the first error (an AbortError by
// convention, though the core does not enforce the concrete type here).
func (d *Descriptor) RunCallbacks(kind CallbackKind, instance interface{}) error {
	for _, cb := range d.Callbacks[kind] {
		if err := cb(instance); err != nil {
			return err
		}
	}
	return nil
}
