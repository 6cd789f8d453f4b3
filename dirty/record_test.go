package dirty

import (
	"errors"
	"testing"

	"eve.evalgo.org/multidb/model"
	"eve.evalgo.org/multidb/multidberr"
	"github.com/stretchr/testify/require"
)

func TestRecordTracksChangesAndRestores(t *testing.T) {
	r := NewRecord(map[string]interface{}{"status": "open", "total": 10})
	require.False(t, r.Changed())

	r.Set("status", "closed")
	require.True(t, r.Changed())
	require.Equal(t, []string{"status"}, r.ChangedAttributes())

	r.Set("status", "open")
	require.False(t, r.Changed(), "setting back to original clears the change")

	r.Set("total", 20)
	r.RestoreAttributes("total")
	require.False(t, r.Changed())
}

func TestRecordMarkSavedSnapshotsAndClears(t *testing.T) {
	r := NewRecord(map[string]interface{}{"status": "open"})
	r.Set("status", "closed")
	r.MarkSaved()

	require.False(t, r.Changed())
	require.Equal(t, "closed", r.CurrentValue("status"))
	require.Equal(t, [2]interface{}{"open", "closed"}, r.SavedChanges()["status"])
	require.Equal(t, r.SavedChanges(), r.PreviousChanges())
}

func TestPersistRunsCallbacksInOrderAndWrites(t *testing.T) {
	var order []string
	record := func(kind model.CallbackKind) model.CallbackFunc {
		return func(instance interface{}) error {
			order = append(order, string(kind))
			return nil
		}
	}
	d := &model.Descriptor{
		Name: "orders",
		Callbacks: map[model.CallbackKind][]model.CallbackFunc{
			model.BeforeValidation: {record(model.BeforeValidation)},
			model.BeforeCreate:     {record(model.BeforeCreate)},
			model.AfterCreate:      {record(model.AfterCreate)},
			model.AfterSave:        {record(model.AfterSave)},
		},
	}
	rec := NewRecord(nil)
	rec.Set("status", "open")

	wrote := false
	err := Persist(d, rec, "instance", true, func(instance interface{}) error {
		wrote = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, wrote)
	require.Equal(t, []string{"before_validation", "before_create", "after_create", "after_save"}, order)
	require.False(t, rec.Changed())
}

func TestPersistAbortsOnCallbackFailure(t *testing.T) {
	boom := errors.New("boom")
	d := &model.Descriptor{
		Callbacks: map[model.CallbackKind][]model.CallbackFunc{
			model.BeforeSave: {func(instance interface{}) error { return boom }},
		},
	}
	rec := NewRecord(nil)
	rec.Set("status", "open")

	wrote := false
	err := Persist(d, rec, "instance", true, func(instance interface{}) error {
		wrote = true
		return nil
	})
	var abort *multidberr.AbortError
	require.True(t, errors.As(err, &abort))
	require.False(t, wrote, "write must not run once a before_save callback aborts")
	require.True(t, rec.Changed(), "aborted save must leave pending changes intact")
}

func TestPersistSkipsWriteWhenNothingChangedOnUpdate(t *testing.T) {
	d := &model.Descriptor{}
	rec := NewRecord(map[string]interface{}{"status": "open"})

	wrote := false
	err := Persist(d, rec, "instance", false, func(instance interface{}) error {
		wrote = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, wrote)
}
