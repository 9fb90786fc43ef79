package entity

import "time"

// CountState is the optimistic/authoritative pair behind the total-candidates counter.
type CountState struct {
	Authoritative int       `json:"authoritative"`
	Displayed     int       `json:"displayed"`
	Animating     bool      `json:"animating"`
	LastError     string    `json:"last_error,omitempty"`
	RefreshedAt   time.Time `json:"refreshed_at,omitempty"`
}
