package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventHostStatus    = "icinga_host_status"
	EventServiceStatus = "icinga_service_status"
)

// Event is one named payload pushed to the dashboard.
type Event struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent encodes data once so the event can be stored and replayed
// without keeping the original value around.
func NewEvent(name string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}

	return &Event{
		ID:        uuid.New().String(),
		Name:      name,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
