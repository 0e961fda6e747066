package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Table identifies a local entity table.
type Table string

// Entity tables of the local store
const (
	TableSchedules        Table = "schedules"
	TablePlannedExercises Table = "planned_exercises"
	TableSetLogs          Table = "set_logs"
	TableExercises        Table = "exercises"
	TableMembers          Table = "members"
)

// Tables lists every entity table in a stable order.
var Tables = []Table{
	TableSchedules,
	TablePlannedExercises,
	TableSetLogs,
	TableExercises,
	TableMembers,
}

// LocalIDPrefix marks identifiers minted on the device before any server round trip.
const LocalIDPrefix = "local_"

// NewLocalID mints a locally-authoritative identifier.
func NewLocalID() string {
	return LocalIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsLocalID reports whether id was minted locally and has not been promoted.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Entity представляет запись локального хранилища.
// Доменные объекты (расписания, упражнения, подходы) хранятся в Data как JSON,
// а Entity несет только то, что нужно для индексации и реконсиляции идентификаторов.
type Entity struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Table     Table           `json:"table"`
	ID        string          `json:"id"`        // текущий авторитетный ID (локальный или серверный)
	ParentID  string          `json:"parent_id"` // ссылка на родителя в момент создания
	Data      json.RawMessage `json:"data"`
	SortKey   int64           `json:"sort_key"` // ключ сортировки для Query (обычно unix millis)
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	data := make(json.RawMessage, len(e.Data))
	copy(data, e.Data)

	clone := *e
	clone.Data = data
	return &clone
}

// Decode unmarshals the entity payload into v.
func (e *Entity) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// ReplaceIdentifier rewrites every reference to oldID (own id, parent reference
// and occurrences inside the encoded payload). Returns true if anything changed.
func (e *Entity) ReplaceIdentifier(oldID, newID string) bool {
	if oldID == "" || oldID == newID {
		return false
	}

	changed := false
	if e.ID == oldID {
		e.ID = newID
		changed = true
	}
	if e.ParentID == oldID {
		e.ParentID = newID
		changed = true
	}
	if bytes.Contains(e.Data, []byte(oldID)) {
		e.Data = bytes.ReplaceAll(e.Data, []byte(oldID), []byte(newID))
		changed = true
	}
	return changed
}

// EntityPredicate selects entities in QueryEntities.
type EntityPredicate func(*Entity) bool

// All matches every entity.
func All() EntityPredicate {
	return func(*Entity) bool { return true }
}

// ByParent matches children of the given parent id.
func ByParent(parentID string) EntityPredicate {
	return func(e *Entity) bool { return e.ParentID == parentID }
}

// InRange matches entities whose SortKey falls in [from, to). A zero bound is open.
func InRange(from, to time.Time) EntityPredicate {
	return func(e *Entity) bool {
		if !from.IsZero() && e.SortKey < from.UnixMilli() {
			return false
		}
		if !to.IsZero() && e.SortKey >= to.UnixMilli() {
			return false
		}
		return true
	}
}
