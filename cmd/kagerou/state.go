// cmd/kagerou/state.go
package main

import (
	"sync"
	"time"
)

// RuntimeState tracks in-memory operational counters exposed by the status
// server and the /status command. Durable delivery progress lives in the
// marker store, not here.
type RuntimeState struct {
	Paused         bool      `json:"paused"`
	StartupTime    time.Time `json:"startupTime"`
	TickCount      int64     `json:"tickCount"`
	DeliveredItems int64     `json:"deliveredItems"`
	ErrorCount     int64     `json:"errorCount"`
	LastError      string    `json:"lastError,omitempty"`
	LastErrorTime  time.Time `json:"lastErrorTime,omitempty"`
	LastTickTime   time.Time `json:"lastTickTime,omitempty"`
	Version        string    `json:"version"`
}

var (
	state = &RuntimeState{
		StartupTime: time.Now(),
		Version:     VERSION,
	}
	stateMutex sync.Mutex
)

// GetState returns a copy of the current runtime state.
func GetState() RuntimeState {
	stateMutex.Lock()
	defer stateMutex.Unlock()
	return *state
}

// SetPaused sets the paused flag. Paused subjects still tick but skip the
// pipeline, so resuming catches up naturally.
func SetPaused(paused bool) {
	stateMutex.Lock()
	defer stateMutex.Unlock()
	state.Paused = paused
}

// GetPaused gets the current paused state
func GetPaused() bool {
	stateMutex.Lock()
	defer stateMutex.Unlock()
	return state.Paused
}

// RecordTick notes a completed tick and how many items it delivered.
func RecordTick(delivered int) {
	stateMutex.Lock()
	defer stateMutex.Unlock()
	state.TickCount++
	state.DeliveredItems += int64(delivered)
	state.LastTickTime = time.Now()
}

// RecordError records an error in the runtime state.
func RecordError(errorMsg string) {
	stateMutex.Lock()
	defer stateMutex.Unlock()
	state.ErrorCount++
	state.LastError = errorMsg
	state.LastErrorTime = time.Now()
}
