// Package change compares a fresh extraction against the prior snapshot.
package change

import (
	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/metrics"
)

// Tracked field names as they appear in change records.
const (
	FieldPrice            = "price"
	FieldHours            = "hours"
	FieldExtendedCare     = "extendedCare"
	FieldSessionCount     = "sessionCount"
	FieldRegistrationOpen = "registrationOpen"
)

// Detector emits ChangeSets stamped with the clock's time.
type Detector struct {
	clock camp.Clock
}

// NewDetector builds a detector.
func NewDetector(clock camp.Clock) *Detector {
	return &Detector{clock: clock}
}

// Detect compares prior and current. Only fields present on both sides are
// compared; a nil prior yields no changes. Extended care only changes
// between two known values.
func (d *Detector) Detect(entityID string, prior *camp.CanonicalFacts, current camp.CanonicalFacts) camp.ChangeSet {
	set := camp.ChangeSet{
		EntityID:   entityID,
		Changes:    make([]camp.Change, 0),
		DetectedAt: d.clock.Now(),
	}
	if prior == nil {
		return set
	}

	oldPrice, okOld := prior.Pricing[camp.TierWeekly]
	newPrice, okNew := current.Pricing[camp.TierWeekly]
	if okOld && okNew && oldPrice != newPrice {
		add(&set, FieldPrice, oldPrice, newPrice, camp.SignificanceHigh)
	}

	if o, n := prior.Hours.StandardRange, current.Hours.StandardRange; o != "" && n != "" && o != n {
		add(&set, FieldHours, o, n, camp.SignificanceMedium)
	}

	if o, n := prior.ExtendedCare.Available, current.ExtendedCare.Available; o.Known() && n.Known() && o != n {
		add(&set, FieldExtendedCare, o == camp.TriTrue, n == camp.TriTrue, camp.SignificanceHigh)
	}

	if o, n := len(prior.Sessions), len(current.Sessions); o > 0 && n > 0 && o != n {
		add(&set, FieldSessionCount, o, n, camp.SignificanceMedium)
	}

	if o, n := prior.Registration.Status, current.Registration.Status; o != "" && n != "" {
		wasOpen, isOpen := o == "open", n == "open"
		if wasOpen != isOpen {
			add(&set, FieldRegistrationOpen, wasOpen, isOpen, camp.SignificanceHigh)
		}
	}

	set.HasChanges = len(set.Changes) > 0
	return set
}

func add(set *camp.ChangeSet, field string, old, updated any, sig camp.Significance) {
	set.Changes = append(set.Changes, camp.Change{Field: field, Old: old, New: updated, Significance: sig})
	metrics.ObserveChange(field, string(sig))
}
