package models

import (
	"encoding/json"
	"time"
)

// User представляет тренера на сервере разработки
type User struct {
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	ID          string     `json:"id"`            // UUID пользователя
	Username    string     `json:"username"`      // уникальный username
	AuthKeyHash string     `json:"auth_key_hash"` // sha256 хеш auth_key от клиента
	PublicSalt  string     `json:"public_salt"`   // base64 encoded salt (32 bytes)
}

// Record is a server-side copy of a synced entity.
type Record struct {
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Table     Table           `json:"table"`
	ParentID  string          `json:"parent_id,omitempty"`
	ClientID  string          `json:"client_id,omitempty"` // локальный id, под которым клиент создал запись
	Data      json.RawMessage `json:"data"`
}

// DeliveryResult is the first answer the server gave to a correlation id.
// Redeliveries of the same id are answered from it.
type DeliveryResult struct {
	CreatedAt     time.Time `json:"created_at"`
	CorrelationID string    `json:"correlation_id"`
	UserID        string    `json:"user_id"`
	Body          []byte    `json:"body,omitempty"`
	Status        int       `json:"status"`
}
