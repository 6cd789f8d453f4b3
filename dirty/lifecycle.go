package dirty

import (
	"eve.evalgo.org/multidb/model"
	"eve.evalgo.org/multidb/multidberr"
)

// WriteFunc performs the actual SQL write (INSERT or UPDATE) for
// instance once validation and before-save callbacks have passed.
type WriteFunc func(instance interface{}) error

// Persist runs descriptor's callbacks around write in the fixed order
// from model.CallbackOrder: before_validation, after_validation,
// before_save, then before_create or before_update depending on isNew,
// then the I/O itself, then after_create/after_update, after_save. A
// callback returning an error aborts the chain -- by convention an
// AbortError -- and Persist reports that as "save failed" without
// running write or any later callback; record is left untouched so the
// caller can inspect what was attempted via record.Changes().
//
// after_commit and after_rollback are not run here: they fire on the
// outermost transaction's actual commit/rollback, which this function
// does not control. Call AfterCommit or AfterRollback once the
// enclosing transaction resolves.
func Persist(descriptor *model.Descriptor, record *Record, instance interface{}, isNew bool, write WriteFunc) error {
	before := []model.CallbackKind{model.BeforeValidation, model.AfterValidation, model.BeforeSave}
	for _, kind := range before {
		if err := descriptor.RunCallbacks(kind, instance); err != nil {
			return &multidberr.AbortError{Callback: string(kind)}
		}
	}

	createOrUpdate := model.BeforeUpdate
	if isNew {
		createOrUpdate = model.BeforeCreate
	}
	if err := descriptor.RunCallbacks(createOrUpdate, instance); err != nil {
		return &multidberr.AbortError{Callback: string(createOrUpdate)}
	}

	if !record.Changed() && !isNew {
		return nil
	}

	if err := write(instance); err != nil {
		return err
	}

	after := []model.CallbackKind{}
	if isNew {
		after = append(after, model.AfterCreate)
	} else {
		after = append(after, model.AfterUpdate)
	}
	after = append(after, model.AfterSave)
	for _, kind := range after {
		if err := descriptor.RunCallbacks(kind, instance); err != nil {
			return &multidberr.AbortError{Callback: string(kind)}
		}
	}

	record.MarkSaved()
	return nil
}

// AfterCommit runs the after_commit callbacks. Call this once, after the
// single outermost transaction enclosing one or more Persist calls
// actually commits -- never after a savepoint release, since §4.15
// requires after_commit to fire only on the outermost commit.
func AfterCommit(descriptor *model.Descriptor, instance interface{}) error {
	return descriptor.RunCallbacks(model.AfterCommit, instance)
}

// AfterRollback runs the after_rollback callbacks, mirroring AfterCommit
// for the failure path.
func AfterRollback(descriptor *model.Descriptor, instance interface{}) error {
	return descriptor.RunCallbacks(model.AfterRollback, instance)
}
