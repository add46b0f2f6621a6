package domain

import "sort"

// =============================================================================
// Annotated call log columns
// =============================================================================

const (
	ColID                    = "id"
	ColTimestamp             = "timestamp"
	ColNumber                = "number"
	ColNormalizedNumber      = "normalized_number"
	ColFormattedNumber       = "formatted_number"
	ColCountryISO            = "country_iso"
	ColCallType              = "call_type"
	ColDuration              = "duration"
	ColFeatures              = "features"
	ColGeocodedLocation      = "geocoded_location"
	ColPhoneAccountComponent = "phone_account_component"
	ColPhoneAccountID        = "phone_account_id"
	ColIsRead                = "is_read"
	ColNew                   = "new"

	// Phone lookup derived
	ColPrimaryText        = "primary_text"
	ColPhotoURI           = "photo_uri"
	ColPhotoID            = "photo_id"
	ColLookupURI          = "lookup_uri"
	ColNumberTypeLabel    = "number_type_label"
	ColIsBusiness         = "is_business"
	ColIsVoicemailNumber  = "is_voicemail_number"
	ColCanReportAsInvalid = "can_report_as_invalid"
	ColLookupInfo         = "lookup_info"
	ColLookupComplete     = "lookup_complete"

	// Voicemail
	ColVoicemailURI  = "voicemail_uri"
	ColTranscription = "transcription"

	// Spam / blocklist
	ColIsSpam    = "is_spam"
	ColIsBlocked = "is_blocked"
)

// annotatedColumns lists every writable column with its storage kind.
var annotatedColumns = map[string]ColumnKind{
	ColTimestamp:             KindInt,
	ColNumber:                KindText,
	ColNormalizedNumber:      KindText,
	ColFormattedNumber:       KindText,
	ColCountryISO:            KindText,
	ColCallType:              KindInt,
	ColDuration:              KindInt,
	ColFeatures:              KindInt,
	ColGeocodedLocation:      KindText,
	ColPhoneAccountComponent: KindText,
	ColPhoneAccountID:        KindText,
	ColIsRead:                KindBool,
	ColNew:                   KindBool,
	ColPrimaryText:           KindText,
	ColPhotoURI:              KindText,
	ColPhotoID:               KindInt,
	ColLookupURI:             KindText,
	ColNumberTypeLabel:       KindText,
	ColIsBusiness:            KindBool,
	ColIsVoicemailNumber:     KindBool,
	ColCanReportAsInvalid:    KindBool,
	ColLookupInfo:            KindText,
	ColLookupComplete:        KindBool,
	ColVoicemailURI:          KindText,
	ColTranscription:         KindText,
	ColIsSpam:                KindBool,
	ColIsBlocked:             KindBool,
}

// ColumnKind is the storage kind of a column.
type ColumnKind int

const (
	KindInt ColumnKind = iota
	KindText
	KindBool
)

// ColumnKindOf reports the kind of a writable column.
func ColumnKindOf(col string) (ColumnKind, bool) {
	kind, ok := annotatedColumns[col]
	return kind, ok
}

// AnnotatedColumns returns the writable columns in a stable order.
func AnnotatedColumns() []string {
	cols := make([]string, 0, len(annotatedColumns))
	for col := range annotatedColumns {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// =============================================================================
// Fields - open attribute bag
// =============================================================================

// Fields is the attribute bag carried by mutations and coalesced rows.
// Getters never panic: absent or mistyped values read as the zero value.
type Fields map[string]any

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into f, overwriting existing keys.
func (f Fields) Merge(other Fields) {
	for k, v := range other {
		f[k] = v
	}
}

// Has reports whether col is set.
func (f Fields) Has(col string) bool {
	_, ok := f[col]
	return ok
}

// Keys returns the set columns sorted.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Int64 reads an integer column.
func (f Fields) Int64(col string) int64 {
	switch v := f[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

// Int reads an integer column.
func (f Fields) Int(col string) int {
	return int(f.Int64(col))
}

// String reads a text column.
func (f Fields) String(col string) string {
	switch v := f[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

// Bool reads a boolean column. Integers stored as 0/1 are accepted.
func (f Fields) Bool(col string) bool {
	switch v := f[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// Equal reports whether both bags hold the same values for the same keys.
func (f Fields) Equal(other Fields) bool {
	if len(f) != len(other) {
		return false
	}
	for k, v := range f {
		ov, ok := other[k]
		if !ok || !valueEqual(v, ov) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && string(av) == string(bv)
	default:
		return a == b
	}
}
