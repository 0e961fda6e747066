package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceOperationID(t *testing.T) {
	tests := []struct {
		op      Operation
		want    Operation
		name    string
		changed bool
	}{
		{
			name:    "create local id",
			op:      EntityCreate{Table: TableSchedules, LocalID: "L"},
			want:    EntityCreate{Table: TableSchedules, LocalID: "S"},
			changed: true,
		},
		{
			name:    "create parent id",
			op:      EntityCreate{Table: TablePlannedExercises, LocalID: "C", ParentID: "L"},
			want:    EntityCreate{Table: TablePlannedExercises, LocalID: "C", ParentID: "S"},
			changed: true,
		},
		{
			name:    "update",
			op:      EntityUpdate{Table: TableSchedules, ID: "L"},
			want:    EntityUpdate{Table: TableSchedules, ID: "S"},
			changed: true,
		},
		{
			name:    "status",
			op:      StatusUpdate{Table: TableSchedules, ID: "L", Status: "completed"},
			want:    StatusUpdate{Table: TableSchedules, ID: "S", Status: "completed"},
			changed: true,
		},
		{
			name:    "delete",
			op:      EntityDelete{Table: TableSchedules, ID: "L"},
			want:    EntityDelete{Table: TableSchedules, ID: "S"},
			changed: true,
		},
		{
			name:    "unrelated",
			op:      EntityDelete{Table: TableSchedules, ID: "X"},
			want:    EntityDelete{Table: TableSchedules, ID: "X"},
			changed: false,
		},
		{
			name:    "nil",
			op:      nil,
			want:    nil,
			changed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := ReplaceOperationID(tt.op, "L", "S")
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOperationJSON(t *testing.T) {
	ops := []Operation{
		EntityCreate{Table: TableSchedules, LocalID: "local_1", ParentID: "p"},
		EntityUpdate{Table: TableExercises, ID: "e1"},
		StatusUpdate{Table: TableSchedules, ID: "s1", Status: "missed"},
		EntityDelete{Table: TableSchedules, ID: "s1"},
	}

	for _, op := range ops {
		t.Run(string(op.Kind()), func(t *testing.T) {
			data, err := MarshalOperation(op)
			require.NoError(t, err)

			decoded, err := UnmarshalOperation(data)
			require.NoError(t, err)
			assert.Equal(t, op, decoded)
		})
	}
}

func TestUnmarshalOperation_Null(t *testing.T) {
	op, err := UnmarshalOperation([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestOperation_EntityAccessors(t *testing.T) {
	create := EntityCreate{Table: TableSchedules, LocalID: "local_1"}
	assert.Equal(t, "local_1", create.EntityID())
	assert.Equal(t, TableSchedules, create.EntityTable())

	status := StatusUpdate{Table: TableSchedules, ID: "srv_1", Status: "completed"}
	assert.Equal(t, "srv_1", status.EntityID())
	assert.Equal(t, KindStatusUpdate, status.Kind())
}
