package trigger

import "universalis-alerts/internal/model"

// Evaluate applies rule to listings and reports whether it fired.
//
// On a match the returned value is the lowest price per unit among the
// listings that satisfied the rule; the earliest listing wins ties. An empty
// listing set never matches, in either mode. Evaluate does not modify its
// arguments.
func Evaluate(rule *Rule, listings []model.Listing) (float32, bool) {
	if rule == nil || rule.When == nil || len(listings) == 0 {
		return 0, false
	}

	best := -1
	for i, l := range listings {
		ok := rule.When.Matches(l)
		if !ok {
			if rule.Mode == ModeAll {
				return 0, false
			}
			continue
		}
		if best < 0 || l.PricePerUnit < listings[best].PricePerUnit {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return float32(listings[best].PricePerUnit), true
}
