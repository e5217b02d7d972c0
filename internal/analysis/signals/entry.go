package signals

import "equity-scanner/internal/analysis/indicators"

// EntryConditions records which entry rules held.
type EntryConditions struct {
	RSIOversold     bool `json:"rsi_oversold"`
	NearBBLower     bool `json:"bb_lower"`
	BelowMA50       bool `json:"below_ma50"`
	ConsecutiveDown bool `json:"consecutive_down"`
	TargetReached   bool `json:"target_reached"`
}

// Count returns the number of conditions that held, target included.
func (c EntryConditions) Count() int {
	n := 0
	for _, ok := range []bool{c.RSIOversold, c.NearBBLower, c.BelowMA50, c.ConsecutiveDown, c.TargetReached} {
		if ok {
			n++
		}
	}
	return n
}

// EntrySignal is the result of an entry evaluation.
type EntrySignal struct {
	Fired      bool            `json:"fired"`
	Strength   Strength        `json:"strength"`
	Met        int             `json:"met"`
	Conditions EntryConditions `json:"conditions"`
	Price      float64         `json:"price"`
	Target     float64         `json:"target,omitempty"`
	RSI        float64         `json:"rsi"`
	BBPosition float64         `json:"bb_position"`
	MA50Gap    float64         `json:"ma50_gap"`
	DownDays   int             `json:"down_days"`
}

// Entry evaluates the buy-the-dip rules. The signal fires when at least
// MinConditions of the four technical rules hold, or when price has reached
// a positive target. A zero target disables the target rule.
func (e *Evaluator) Entry(b *indicators.Bundle, target float64) EntrySignal {
	c := EntryConditions{
		RSIOversold:     b.RSI <= e.entry.RSIMax,
		NearBBLower:     b.BBPosition <= e.entry.BBPositionMax,
		BelowMA50:       b.MA50Gap <= e.entry.MA50GapMax,
		ConsecutiveDown: b.DownDays >= e.entry.MinDownDays,
		TargetReached:   target > 0 && b.Price <= target,
	}

	technical := c.Count()
	if c.TargetReached {
		technical--
	}
	met := c.Count()

	return EntrySignal{
		Fired:      technical >= e.entry.MinConditions || c.TargetReached,
		Strength:   strengthFor(met),
		Met:        met,
		Conditions: c,
		Price:      b.Price,
		Target:     target,
		RSI:        b.RSI,
		BBPosition: b.BBPosition,
		MA50Gap:    b.MA50Gap,
		DownDays:   b.DownDays,
	}
}

func strengthFor(met int) Strength {
	switch {
	case met >= 4:
		return StrengthStrong
	case met == 3:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}
