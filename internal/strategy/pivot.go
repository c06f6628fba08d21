package strategy

import (
	"fmt"
	"math"
)

// PivotCPR trades breakouts of the daily Central Pivot Range and the r1..r4 /
// s1..s4 pivot levels. Evaluation is deterministic and stateless; the same
// snapshot always yields the same signal.
type PivotCPR struct{}

// Evaluate applies the rules in their fixed precedence:
//
//  1. CPR bands: buy CE inside [tc, tc+buffer], sell PE inside [bc-buffer, bc],
//     exit when the price is strictly inside the CPR with a position open.
//  2. Pivot bands: scan r1..r4, s1..s4 in order; every level is checked and a
//     later match overwrites the result so far, including step 1's.
//  3. Crossing exit: only when nothing above fired and a position is open,
//     exit at the first level the prior bar crossed against the position
//     (PE: close above and open below; CE: close below and open above).
func (PivotCPR) Evaluate(snap Snapshot) Signal {
	price := snap.Price
	lv := snap.Levels

	sig := Signal{
		Action: NoAction,
		Strike: RoundStrike(price),
		Reason: "price in neutral zone",
	}

	switch {
	case price >= lv.TC && price <= lv.TC+lv.Buffer:
		sig.Action, sig.Direction = Buy, CE
		sig.Reason = "price above TC within buffer"
	case price <= lv.BC && price >= lv.BC-lv.Buffer:
		sig.Action, sig.Direction = Sell, PE
		sig.Reason = "price below BC within buffer"
	case price < lv.TC && price > lv.BC && snap.LastDirection != "":
		sig.Action, sig.Direction = Exit, snap.LastDirection
		sig.Reason = "price within CPR range"
	}

	for _, level := range lv.bands() {
		if price > level.value && price <= level.value+lv.Buffer {
			sig.Action, sig.Direction = Buy, CE
			sig.Reason = fmt.Sprintf("price above %s (%.2f) within buffer", level.name, level.value)
		} else if price < level.value && price >= level.value-lv.Buffer {
			sig.Action, sig.Direction = Sell, PE
			sig.Reason = fmt.Sprintf("price below %s (%.2f) within buffer", level.name, level.value)
		}
	}

	if sig.Action == NoAction && snap.LastDirection != "" {
		for _, level := range lv.crossings() {
			if !crossedAgainst(snap.LastDirection, snap.PriorBar, level.value) {
				continue
			}
			sig.Action, sig.Direction = Exit, snap.LastDirection
			sig.Reason = fmt.Sprintf("prior bar crossed %s (%.2f)", level.name, level.value)
			break
		}
	}

	return sig
}

// crossedAgainst reports whether the prior bar straddled level in the
// direction that invalidates an open position of the given side.
func crossedAgainst(held Direction, bar Bar, level float64) bool {
	if held == PE {
		return bar.Close > level && bar.Open < level
	}
	return bar.Close < level && bar.Open > level
}

// RoundStrike maps a spot price to the nearest tradable 100-point strike:
// floor to the hundred below, then up one step when the remainder exceeds 50.
func RoundStrike(price float64) int {
	strike := int(math.Floor(price/100)) * 100
	if math.Mod(price, 100) > 50 {
		strike += 100
	}
	return strike
}
