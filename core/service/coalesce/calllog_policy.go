package coalesce

import (
	"time"

	"calllog_server/core/domain"
)

// GroupingPolicy decides whether next may join the group started by first.
// Implementations compare against the group's first row only.
type GroupingPolicy interface {
	Groupable(first, next domain.AnnotatedRow) bool
}

// NumberTypeDayPolicy groups consecutive calls with the same number. Rows
// without a number never group.
type NumberTypeDayPolicy struct {
	SplitByDay          bool
	SplitByPhoneAccount bool
	SplitVoicemail      bool
	Location            *time.Location
}

// DefaultPolicy splits on every boundary.
func DefaultPolicy() NumberTypeDayPolicy {
	return NumberTypeDayPolicy{
		SplitByDay:          true,
		SplitByPhoneAccount: true,
		SplitVoicemail:      true,
		Location:            time.Local,
	}
}

func (p NumberTypeDayPolicy) Groupable(first, next domain.AnnotatedRow) bool {
	if first.NormalizedNumber == "" || first.NormalizedNumber != next.NormalizedNumber {
		return false
	}
	if p.SplitVoicemail && isVoicemail(first) != isVoicemail(next) {
		return false
	}
	if p.SplitByPhoneAccount &&
		(first.PhoneAccountComponent != next.PhoneAccountComponent || first.PhoneAccountID != next.PhoneAccountID) {
		return false
	}
	if p.SplitByDay {
		loc := p.Location
		if loc == nil {
			loc = time.Local
		}
		if !domain.SameDay(first.Timestamp, next.Timestamp, loc) {
			return false
		}
	}
	return true
}

func isVoicemail(r domain.AnnotatedRow) bool {
	return domain.CallType(r.CallType).IsVoicemail()
}
