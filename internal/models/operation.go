package models

import (
	"encoding/json"
	"fmt"
)

// OperationKind is the discriminator persisted as the context "type".
type OperationKind string

const (
	KindEntityCreate OperationKind = "entity_create"
	KindEntityUpdate OperationKind = "entity_update"
	KindStatusUpdate OperationKind = "status_update"
	KindEntityDelete OperationKind = "entity_delete"
)

// Operation describes the domain meaning of a queued request.
// The set of implementations is closed: EntityCreate, EntityUpdate,
// StatusUpdate and EntityDelete.
type Operation interface {
	Kind() OperationKind
	// EntityTable returns the table of the entity the operation concerns.
	EntityTable() Table
	// EntityID returns the identifier of the entity the operation concerns.
	EntityID() string
	isOperation()
}

// EntityCreate creates an entity that is known locally under LocalID.
// ParentID is set for child entities (planned exercise -> schedule).
type EntityCreate struct {
	Table    Table
	LocalID  string
	ParentID string
}

// EntityUpdate replaces fields of an existing entity.
type EntityUpdate struct {
	Table Table
	ID    string
}

// StatusUpdate changes the status of an existing entity.
type StatusUpdate struct {
	Table  Table
	ID     string
	Status string
}

// EntityDelete removes an entity on the server.
type EntityDelete struct {
	Table Table
	ID    string
}

func (EntityCreate) Kind() OperationKind { return KindEntityCreate }
func (EntityUpdate) Kind() OperationKind { return KindEntityUpdate }
func (StatusUpdate) Kind() OperationKind { return KindStatusUpdate }
func (EntityDelete) Kind() OperationKind { return KindEntityDelete }

func (o EntityCreate) EntityTable() Table { return o.Table }
func (o EntityUpdate) EntityTable() Table { return o.Table }
func (o StatusUpdate) EntityTable() Table { return o.Table }
func (o EntityDelete) EntityTable() Table { return o.Table }

func (o EntityCreate) EntityID() string { return o.LocalID }
func (o EntityUpdate) EntityID() string { return o.ID }
func (o StatusUpdate) EntityID() string { return o.ID }
func (o EntityDelete) EntityID() string { return o.ID }

func (EntityCreate) isOperation() {}
func (EntityUpdate) isOperation() {}
func (StatusUpdate) isOperation() {}
func (EntityDelete) isOperation() {}

// ReplaceOperationID returns op with every field equal to oldID replaced by newID.
func ReplaceOperationID(op Operation, oldID, newID string) (Operation, bool) {
	swap := func(v string) (string, bool) {
		if v == oldID {
			return newID, true
		}
		return v, false
	}

	switch o := op.(type) {
	case EntityCreate:
		var a, b bool
		o.LocalID, a = swap(o.LocalID)
		o.ParentID, b = swap(o.ParentID)
		return o, a || b
	case EntityUpdate:
		var changed bool
		o.ID, changed = swap(o.ID)
		return o, changed
	case StatusUpdate:
		var changed bool
		o.ID, changed = swap(o.ID)
		return o, changed
	case EntityDelete:
		var changed bool
		o.ID, changed = swap(o.ID)
		return o, changed
	case nil:
		return nil, false
	default:
		panic(fmt.Sprintf("models: unknown operation %T", op))
	}
}

// operationJSON is the persisted "context" bag.
type operationJSON struct {
	Type     OperationKind `json:"type"`
	Table    Table         `json:"table"`
	LocalID  string        `json:"local_id,omitempty"`
	ID       string        `json:"id,omitempty"`
	ParentID string        `json:"parent_id,omitempty"`
	Status   string        `json:"status,omitempty"`
}

func encodeOperation(op Operation) (*operationJSON, error) {
	switch o := op.(type) {
	case nil:
		return nil, nil
	case EntityCreate:
		return &operationJSON{Type: KindEntityCreate, Table: o.Table, LocalID: o.LocalID, ParentID: o.ParentID}, nil
	case EntityUpdate:
		return &operationJSON{Type: KindEntityUpdate, Table: o.Table, ID: o.ID}, nil
	case StatusUpdate:
		return &operationJSON{Type: KindStatusUpdate, Table: o.Table, ID: o.ID, Status: o.Status}, nil
	case EntityDelete:
		return &operationJSON{Type: KindEntityDelete, Table: o.Table, ID: o.ID}, nil
	default:
		return nil, fmt.Errorf("unknown operation %T", op)
	}
}

func decodeOperation(raw *operationJSON) (Operation, error) {
	if raw == nil {
		return nil, nil
	}
	switch raw.Type {
	case KindEntityCreate:
		return EntityCreate{Table: raw.Table, LocalID: raw.LocalID, ParentID: raw.ParentID}, nil
	case KindEntityUpdate:
		return EntityUpdate{Table: raw.Table, ID: raw.ID}, nil
	case KindStatusUpdate:
		return StatusUpdate{Table: raw.Table, ID: raw.ID, Status: raw.Status}, nil
	case KindEntityDelete:
		return EntityDelete{Table: raw.Table, ID: raw.ID}, nil
	default:
		return nil, fmt.Errorf("unknown operation type %q", raw.Type)
	}
}

// MarshalOperation encodes op as a context bag.
func MarshalOperation(op Operation) ([]byte, error) {
	raw, err := encodeOperation(op)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// UnmarshalOperation decodes a context bag written by MarshalOperation.
func UnmarshalOperation(data []byte) (Operation, error) {
	var raw *operationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operation: %w", err)
	}
	return decodeOperation(raw)
}
