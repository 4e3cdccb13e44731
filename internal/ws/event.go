package ws

import (
	"encoding/json"
	"time"
)

// Event describes one registry change pushed to stream subscribers.
type Event struct {
	Type        string    `json:"type"`
	TomainID    string    `json:"tomain_id"`
	Feature     string    `json:"feature,omitempty"`
	Alias       string    `json:"alias,omitempty"`
	Environment string    `json:"environment,omitempty"`
	At          time.Time `json:"at"`
}

// Publish marshals the event and broadcasts it on the tomain's topic. A nil
// hub is a no-op so services can run without a stream attached.
func Publish(hub *Hub, event Event) {
	if hub == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	hub.Broadcast(event.TomainID, payload)
}
