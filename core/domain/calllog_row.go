package domain

import "time"

// CallType is the outcome code of a single call.
type CallType int

const (
	CallTypeIncoming           CallType = 1
	CallTypeOutgoing           CallType = 2
	CallTypeMissed             CallType = 3
	CallTypeVoicemail          CallType = 4
	CallTypeRejected           CallType = 5
	CallTypeBlocked            CallType = 6
	CallTypeAnsweredExternally CallType = 7
)

func (t CallType) String() string {
	switch t {
	case CallTypeIncoming:
		return "incoming"
	case CallTypeOutgoing:
		return "outgoing"
	case CallTypeMissed:
		return "missed"
	case CallTypeVoicemail:
		return "voicemail"
	case CallTypeRejected:
		return "rejected"
	case CallTypeBlocked:
		return "blocked"
	case CallTypeAnsweredExternally:
		return "answered_externally"
	default:
		return "unknown"
	}
}

// IsVoicemail reports whether the call left a voicemail.
func (t CallType) IsVoicemail() bool {
	return t == CallTypeVoicemail
}

// Feature bits of the features column.
const (
	FeatureVideo            int64 = 1
	FeaturePulledExternally int64 = 2
	FeatureHDCall           int64 = 4
	FeatureWifi             int64 = 8
	FeatureRTT              int64 = 32
)

// DayGroup buckets a row relative to the read time.
type DayGroup int

const (
	DayGroupToday DayGroup = iota
	DayGroupYesterday
	DayGroupOlder
)

func (g DayGroup) String() string {
	switch g {
	case DayGroupToday:
		return "today"
	case DayGroupYesterday:
		return "yesterday"
	default:
		return "older"
	}
}

// DayGroupOf classifies ts (unix millis) against now in now's location.
func DayGroupOf(ts int64, now time.Time) DayGroup {
	t := time.UnixMilli(ts).In(now.Location())
	today := startOfDay(now)
	switch {
	case !t.Before(today):
		return DayGroupToday
	case !t.Before(today.AddDate(0, 0, -1)):
		return DayGroupYesterday
	default:
		return DayGroupOlder
	}
}

// SameDay reports whether two unix-millis timestamps fall on the same
// calendar day in loc.
func SameDay(a, b int64, loc *time.Location) bool {
	ta := time.UnixMilli(a).In(loc)
	tb := time.UnixMilli(b).In(loc)
	ya, ma, da := ta.Date()
	yb, mb, db := tb.Date()
	return ya == yb && ma == mb && da == db
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// =============================================================================
// SystemCallRow - native call log
// =============================================================================

// SystemCallRow is one row of the native call log. Timestamps are unix millis.
type SystemCallRow struct {
	ID                    int64  `db:"id"`
	Timestamp             int64  `db:"timestamp"`
	LastModified          int64  `db:"last_modified"`
	Number                string `db:"number"`
	CallType              int    `db:"call_type"`
	CountryISO            string `db:"country_iso"`
	Duration              int64  `db:"duration"`
	Features              int64  `db:"features"`
	GeocodedLocation      string `db:"geocoded_location"`
	PhoneAccountComponent string `db:"phone_account_component"`
	PhoneAccountID        string `db:"phone_account_id"`
	IsRead                bool   `db:"is_read"`
	New                   bool   `db:"new"`
	CachedName            string `db:"cached_name"`
	CachedFormattedNumber string `db:"cached_formatted_number"`
}

// ModifiedCursor is the position of the last native row processed. Rows are
// read in (LastModified, ID) order, so rows sharing one last-modified value
// are never skipped across batches.
type ModifiedCursor struct {
	LastModified int64
	ID           int64
}

// Before reports whether row sorts after the cursor.
func (c ModifiedCursor) Before(row SystemCallRow) bool {
	if row.LastModified != c.LastModified {
		return row.LastModified > c.LastModified
	}
	return row.ID > c.ID
}

// Advance returns the later of c and row's position.
func (c ModifiedCursor) Advance(row SystemCallRow) ModifiedCursor {
	if c.Before(row) {
		return ModifiedCursor{LastModified: row.LastModified, ID: row.ID}
	}
	return c
}

// =============================================================================
// AnnotatedRow - committed annotated call log row
// =============================================================================

// AnnotatedRow is one committed row of the annotated call log.
type AnnotatedRow struct {
	ID                    int64  `db:"id" json:"id"`
	Timestamp             int64  `db:"timestamp" json:"timestamp"`
	Number                string `db:"number" json:"number"`
	NormalizedNumber      string `db:"normalized_number" json:"normalized_number"`
	FormattedNumber       string `db:"formatted_number" json:"formatted_number"`
	CountryISO            string `db:"country_iso" json:"country_iso"`
	CallType              int    `db:"call_type" json:"call_type"`
	Duration              int64  `db:"duration" json:"duration"`
	Features              int64  `db:"features" json:"features"`
	GeocodedLocation      string `db:"geocoded_location" json:"geocoded_location"`
	PhoneAccountComponent string `db:"phone_account_component" json:"phone_account_component"`
	PhoneAccountID        string `db:"phone_account_id" json:"phone_account_id"`
	IsRead                bool   `db:"is_read" json:"is_read"`
	New                   bool   `db:"new" json:"new"`
	PrimaryText           string `db:"primary_text" json:"primary_text"`
	PhotoURI              string `db:"photo_uri" json:"photo_uri"`
	PhotoID               int64  `db:"photo_id" json:"photo_id"`
	LookupURI             string `db:"lookup_uri" json:"lookup_uri"`
	NumberTypeLabel       string `db:"number_type_label" json:"number_type_label"`
	IsBusiness            bool   `db:"is_business" json:"is_business"`
	IsVoicemailNumber     bool   `db:"is_voicemail_number" json:"is_voicemail_number"`
	CanReportAsInvalid    bool   `db:"can_report_as_invalid" json:"can_report_as_invalid"`
	LookupInfo            string `db:"lookup_info" json:"-"`
	LookupComplete        bool   `db:"lookup_complete" json:"lookup_complete"`
	VoicemailURI          string `db:"voicemail_uri" json:"voicemail_uri"`
	Transcription         string `db:"transcription" json:"transcription"`
	IsSpam                bool   `db:"is_spam" json:"is_spam"`
	IsBlocked             bool   `db:"is_blocked" json:"is_blocked"`
}

// RowLookupState is the committed lookup identity of one row.
type RowLookupState struct {
	ID               int64  `db:"id"`
	NormalizedNumber string `db:"normalized_number"`
	LookupInfo       string `db:"lookup_info"`
	LookupComplete   bool   `db:"lookup_complete"`
}

// Matches reports whether the row already carries info. A stored value that
// does not decode never matches.
func (s RowLookupState) Matches(info LookupInfo) bool {
	if s.LookupComplete != info.IsComplete() {
		return false
	}
	stored, err := UnmarshalLookupInfo(s.LookupInfo)
	if err != nil {
		return false
	}
	return stored.Equal(info)
}

// Fields returns the row as an attribute bag (id excluded).
func (r AnnotatedRow) Fields() Fields {
	return Fields{
		ColTimestamp:             r.Timestamp,
		ColNumber:                r.Number,
		ColNormalizedNumber:      r.NormalizedNumber,
		ColFormattedNumber:       r.FormattedNumber,
		ColCountryISO:            r.CountryISO,
		ColCallType:              int64(r.CallType),
		ColDuration:              r.Duration,
		ColFeatures:              r.Features,
		ColGeocodedLocation:      r.GeocodedLocation,
		ColPhoneAccountComponent: r.PhoneAccountComponent,
		ColPhoneAccountID:        r.PhoneAccountID,
		ColIsRead:                r.IsRead,
		ColNew:                   r.New,
		ColPrimaryText:           r.PrimaryText,
		ColPhotoURI:              r.PhotoURI,
		ColPhotoID:               r.PhotoID,
		ColLookupURI:             r.LookupURI,
		ColNumberTypeLabel:       r.NumberTypeLabel,
		ColIsBusiness:            r.IsBusiness,
		ColIsVoicemailNumber:     r.IsVoicemailNumber,
		ColCanReportAsInvalid:    r.CanReportAsInvalid,
		ColLookupInfo:            r.LookupInfo,
		ColLookupComplete:        r.LookupComplete,
		ColVoicemailURI:          r.VoicemailURI,
		ColTranscription:         r.Transcription,
		ColIsSpam:                r.IsSpam,
		ColIsBlocked:             r.IsBlocked,
	}
}

// =============================================================================
// CoalescedRow - read model
// =============================================================================

// MaxCallTypeHistory caps CoalescedRow.CallTypes.
const MaxCallTypeHistory = 3

// CoalescedRow is a display aggregate over one or more adjacent rows sharing a
// number and call class. It is computed at read time and never persisted.
type CoalescedRow struct {
	ID             int64      `json:"id"`
	IDs            []int64    `json:"ids"`
	Timestamp      int64      `json:"timestamp"`
	Number         string     `json:"number"`
	Fields         Fields     `json:"fields"`
	NumberCalls    int        `json:"number_calls"`
	CallTypes      []CallType `json:"call_types"`
	DayGroup       DayGroup   `json:"day_group"`
	ShowDayHeader  bool       `json:"show_day_header"`
	LookupComplete bool       `json:"lookup_complete"`
}

// NormalizedNumber is the grouping and cache key of the row.
func (r CoalescedRow) NormalizedNumber() string {
	return r.Fields.String(ColNormalizedNumber)
}

// LookupInfo decodes the persisted lookup info, empty when absent or corrupt.
func (r CoalescedRow) LookupInfo() LookupInfo {
	info, err := UnmarshalLookupInfo(r.Fields.String(ColLookupInfo))
	if err != nil {
		return LookupInfo{}
	}
	return info
}

// Clone returns a copy that shares nothing mutable with r.
func (r CoalescedRow) Clone() CoalescedRow {
	out := r
	out.IDs = append([]int64(nil), r.IDs...)
	out.CallTypes = append([]CallType(nil), r.CallTypes...)
	out.Fields = r.Fields.Clone()
	return out
}
