package domain

import (
	"github.com/goccy/go-json"
)

// LookupSource names the provider that owns a LookupInfo sub-record.
type LookupSource string

const (
	LookupSourceContacts  LookupSource = "contacts"
	LookupSourceDirectory LookupSource = "directory"
	LookupSourceVoicemail LookupSource = "voicemail"
)

// ContactsInfo is the local contacts match for a number.
type ContactsInfo struct {
	ContactID       int64  `json:"contact_id,omitempty"`
	Name            string `json:"name,omitempty"`
	PhotoURI        string `json:"photo_uri,omitempty"`
	PhotoID         int64  `json:"photo_id,omitempty"`
	LookupURI       string `json:"lookup_uri,omitempty"`
	NumberTypeLabel string `json:"number_type_label,omitempty"`
	Incomplete      bool   `json:"incomplete,omitempty"`
}

// DirectoryInfo is the remote people directory match for a number.
type DirectoryInfo struct {
	ResourceName       string `json:"resource_name,omitempty"`
	Name               string `json:"name,omitempty"`
	PhotoURI           string `json:"photo_uri,omitempty"`
	LookupURI          string `json:"lookup_uri,omitempty"`
	NumberTypeLabel    string `json:"number_type_label,omitempty"`
	IsBusiness         bool   `json:"is_business,omitempty"`
	CanReportAsInvalid bool   `json:"can_report_as_invalid,omitempty"`
	Incomplete         bool   `json:"incomplete,omitempty"`
}

// VoicemailInfo marks the configured voicemail access numbers.
type VoicemailInfo struct {
	IsVoicemail bool `json:"is_voicemail,omitempty"`
	Incomplete  bool `json:"incomplete,omitempty"`
}

// LookupInfo is the merged identity information for one number. Each
// provider writes only its own sub-record.
type LookupInfo struct {
	Contacts  *ContactsInfo  `json:"contacts,omitempty"`
	Directory *DirectoryInfo `json:"directory,omitempty"`
	Voicemail *VoicemailInfo `json:"voicemail,omitempty"`
}

// SubRecord returns a LookupInfo holding only the sub-record owned by src.
func (l LookupInfo) SubRecord(src LookupSource) LookupInfo {
	return LookupInfo{}.WithSubRecord(src, l)
}

// WithSubRecord returns a copy of l whose src sub-record is replaced by the
// one in from. Other sub-records are untouched.
func (l LookupInfo) WithSubRecord(src LookupSource, from LookupInfo) LookupInfo {
	out := l
	switch src {
	case LookupSourceContacts:
		out.Contacts = cloneContacts(from.Contacts)
	case LookupSourceDirectory:
		out.Directory = cloneDirectory(from.Directory)
	case LookupSourceVoicemail:
		out.Voicemail = cloneVoicemail(from.Voicemail)
	}
	return out
}

// HasSubRecord reports whether the sub-record for src is present.
func (l LookupInfo) HasSubRecord(src LookupSource) bool {
	switch src {
	case LookupSourceContacts:
		return l.Contacts != nil
	case LookupSourceDirectory:
		return l.Directory != nil
	case LookupSourceVoicemail:
		return l.Voicemail != nil
	}
	return false
}

// IsComplete is false when any present sub-record is flagged incomplete.
func (l LookupInfo) IsComplete() bool {
	if l.Contacts != nil && l.Contacts.Incomplete {
		return false
	}
	if l.Directory != nil && l.Directory.Incomplete {
		return false
	}
	if l.Voicemail != nil && l.Voicemail.Incomplete {
		return false
	}
	return true
}

// IsEmpty reports whether no sub-record is present.
func (l LookupInfo) IsEmpty() bool {
	return l.Contacts == nil && l.Directory == nil && l.Voicemail == nil
}

// Equal compares sub-records by value.
func (l LookupInfo) Equal(other LookupInfo) bool {
	return ptrEqual(l.Contacts, other.Contacts) &&
		ptrEqual(l.Directory, other.Directory) &&
		ptrEqual(l.Voicemail, other.Voicemail)
}

// MarshalLookupInfo encodes info for the lookup_info column and history table.
func MarshalLookupInfo(info LookupInfo) (string, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UnmarshalLookupInfo decodes a stored value. Empty input is the empty info.
func UnmarshalLookupInfo(data string) (LookupInfo, error) {
	var info LookupInfo
	if data == "" {
		return info, nil
	}
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return LookupInfo{}, err
	}
	return info, nil
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneContacts(c *ContactsInfo) *ContactsInfo {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func cloneDirectory(d *DirectoryInfo) *DirectoryInfo {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

func cloneVoicemail(v *VoicemailInfo) *VoicemailInfo {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
