package camp

import "strings"

// HasField reports whether a dotted field name such as "pricing.weekly",
// "hours" or "contact.email" carries a value in f.
func (f CanonicalFacts) HasField(name string) bool {
	group, sub, _ := strings.Cut(name, ".")
	switch group {
	case "pricing":
		if sub == "" {
			return len(f.Pricing) > 0
		}
		_, ok := f.Pricing[PriceTier(sub)]
		return ok
	case "sessions":
		return len(f.Sessions) > 0
	case "hours":
		switch sub {
		case "":
			return !f.Hours.IsZero()
		case "standardRange":
			return f.Hours.StandardRange != ""
		case "dropOff":
			return f.Hours.DropOff != ""
		case "pickUp":
			return f.Hours.PickUp != ""
		case "extendedBefore":
			return f.Hours.ExtendedBefore != ""
		case "extendedAfter":
			return f.Hours.ExtendedAfter != ""
		}
	case "extendedCare":
		return f.ExtendedCare.Available.Known()
	case "ages":
		return !f.Ages.IsZero()
	case "activities":
		return len(f.Activities) > 0
	case "registration":
		switch sub {
		case "":
			return !f.Registration.IsZero()
		case "status":
			return f.Registration.Status != ""
		case "opensDate":
			return f.Registration.OpensDate != ""
		case "waitlist":
			return f.Registration.Waitlist != nil
		}
	case "contact":
		switch sub {
		case "":
			return !f.Contact.IsZero()
		case "email":
			return f.Contact.Email != ""
		case "phone":
			return f.Contact.Phone != ""
		case "address":
			return f.Contact.Address != ""
		}
	}
	return false
}
