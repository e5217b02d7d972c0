package models

import "time"

// WatchlistEntry is a symbol tracked for entry signals.
type WatchlistEntry struct {
	Symbol      string    `json:"symbol"`
	TargetPrice float64   `json:"target_price"`
	AddedPrice  float64   `json:"added_price"`
	Note        string    `json:"note,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

// AlertPriority orders monitor alerts.
type AlertPriority string

const (
	PriorityHigh   AlertPriority = "high"
	PriorityMedium AlertPriority = "medium"
	PriorityLow    AlertPriority = "low"
)

// Rank returns a sort key where lower is more urgent.
func (p AlertPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Alert represents a monitor alert raised for a symbol.
type Alert struct {
	Symbol   string        `json:"symbol"`
	Type     string        `json:"type"`
	Title    string        `json:"title"`
	Detail   string        `json:"detail"`
	Signal   string        `json:"signal"`
	Priority AlertPriority `json:"priority"`
	RaisedAt time.Time     `json:"raised_at"`
}

// Snapshot is the subset of indicator state the monitor compares across runs.
type Snapshot struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	RSI         float64   `json:"rsi"`
	StochK      float64   `json:"stoch_k"`
	ADX         float64   `json:"adx"`
	VolumeRatio float64   `json:"volume_ratio"`
	MA50Gap     float64   `json:"ma50_gap"`
	BBPosition  float64   `json:"bb_position"`
	Supports    []float64 `json:"supports"`
	Resistances []float64 `json:"resistances"`
	CheckedAt   time.Time `json:"checked_at"`
}
