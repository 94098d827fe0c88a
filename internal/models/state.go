package models

import "time"

// PositionBook is the persisted snapshot of the position tracker.
type PositionBook struct {
	Version        int                 `json:"version"`          // bumped when the layout changes
	Positions      map[string]Position `json:"positions"`        // keyed by symbol
	LastUpdateTime time.Time           `json:"last_update_time"` // time of the last open/close
}

// PositionBookVersion is the current PositionBook layout.
const PositionBookVersion = 1
