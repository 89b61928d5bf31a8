package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a JSON object stored in a TEXT column
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID         string  `db:"id"`
	UserID     *string `db:"user_id"`
	Action     string  `db:"action"`
	EntityType string  `db:"entity_type"`
	EntityID   string  `db:"entity_id"`

	// Request details
	IPAddress string `db:"ip_address"`
	UserAgent string `db:"user_agent"`
	RequestID string `db:"request_id"`

	Details JSONMap `db:"details"`

	CreatedAt time.Time `db:"created_at"`
}

// AuditLogFilter provides filtering options for audit queries
type AuditLogFilter struct {
	UserID *string
	Action *string
	Limit  int
}
