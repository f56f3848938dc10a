package mqtt

import (
	"fmt"
	"time"
)

type Action string

const (
	// ActionSample asks a sensor for an immediate measurement outside its
	// regular cadence.
	ActionSample Action = "SAMPLE"

	// ActionSetInterval changes a sensor's sampling cadence. Data carries
	// an "interval" duration string.
	ActionSetInterval Action = "SET_INTERVAL"
)

type IncomingMessage struct {
	Action Action                 `json:"action"`
	Source string                 `json:"source"`
	Data   map[string]interface{} `json:"data"`
}

type OutgoingMessage struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

func (im *IncomingMessage) Validate() error {
	if im.Action == "" {
		return fmt.Errorf("action is required")
	}
	return nil
}
