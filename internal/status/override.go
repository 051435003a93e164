package status

import "time"

// ManualOverride is a user-set status that wins over calendar-derived status
// until it expires or an imminent/active meeting pre-empts it.
type ManualOverride struct {
	Status string
	SetAt  time.Time     // zero when the override carries no timestamp
	Expiry time.Duration // zero means DefaultOverrideExpiry
}

// Set reports whether an override is present at all.
func (o ManualOverride) Set() bool {
	return o.Status != ""
}

// ExpiryOrDefault returns the configured expiry, falling back to the default.
func (o ManualOverride) ExpiryOrDefault() time.Duration {
	if o.Expiry > 0 {
		return o.Expiry
	}
	return DefaultOverrideExpiry
}

// Expired reports whether the override timestamp is older than its expiry.
// Overrides without a timestamp never expire here; Corrupted covers them.
func (o ManualOverride) Expired(now time.Time) bool {
	if !o.Set() || o.SetAt.IsZero() {
		return false
	}
	return now.Sub(o.SetAt) > o.ExpiryOrDefault()
}

// Corrupted reports whether the override looks like a partial write: a status
// with no timestamp. The snooze bridge value is exempt; it is legitimately
// written without one.
func (o ManualOverride) Corrupted() bool {
	return o.Set() && o.Status != StatusMeetingEndedEarly && o.SetAt.IsZero()
}
