package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalID(t *testing.T) {
	a := NewLocalID()
	b := NewLocalID()

	assert.True(t, IsLocalID(a))
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "-")
	assert.False(t, IsLocalID("srv_123"))
}

func TestEntity_ReplaceIdentifier(t *testing.T) {
	e := &Entity{
		Table:    TablePlannedExercises,
		ID:       "local_pe",
		ParentID: "local_s",
		Data:     json.RawMessage(`{"id":"local_pe","schedule_id":"local_s"}`),
	}

	assert.True(t, e.ReplaceIdentifier("local_s", "srv_1"))
	assert.Equal(t, "local_pe", e.ID)
	assert.Equal(t, "srv_1", e.ParentID)
	assert.JSONEq(t, `{"id":"local_pe","schedule_id":"srv_1"}`, string(e.Data))

	assert.False(t, e.ReplaceIdentifier("local_other", "srv_2"))
}

func TestEntity_CloneIsDeep(t *testing.T) {
	e := &Entity{ID: "a", Data: json.RawMessage(`{"x":1}`)}
	c := e.Clone()
	c.Data[2] = 'y'

	assert.Equal(t, `{"x":1}`, string(e.Data))
}

func TestEntity_Decode(t *testing.T) {
	e := &Entity{Data: json.RawMessage(`{"id":"s1","title":"Legs","status":"planned"}`)}

	var s Schedule
	require.NoError(t, e.Decode(&s))
	assert.Equal(t, "Legs", s.Title)
	assert.Equal(t, ScheduleStatusPlanned, s.Status)
}

func TestPredicates(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	e := &Entity{ParentID: "p1", SortKey: base.Add(time.Hour).UnixMilli()}

	assert.True(t, All()(e))
	assert.True(t, ByParent("p1")(e))
	assert.False(t, ByParent("p2")(e))

	assert.True(t, InRange(base, base.Add(2*time.Hour))(e))
	assert.True(t, InRange(time.Time{}, time.Time{})(e))
	assert.False(t, InRange(base.Add(2*time.Hour), time.Time{})(e))
	assert.False(t, InRange(time.Time{}, base.Add(time.Hour))(e))
}

func TestScheduleStatus_Valid(t *testing.T) {
	assert.True(t, ScheduleStatusCompleted.Valid())
	assert.False(t, ScheduleStatus("done").Valid())
}
