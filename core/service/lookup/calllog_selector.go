package lookup

import "calllog_server/core/domain"

// Display attribute selection. Each attribute is taken whole from the
// highest-priority sub-record that has it: contacts, then directory. Values
// from two providers are never combined.

func SelectName(info domain.LookupInfo) string {
	if c := info.Contacts; c != nil && c.Name != "" {
		return c.Name
	}
	if d := info.Directory; d != nil && d.Name != "" {
		return d.Name
	}
	return ""
}

func SelectPhotoURI(info domain.LookupInfo) string {
	if c := info.Contacts; c != nil && c.PhotoURI != "" {
		return c.PhotoURI
	}
	if d := info.Directory; d != nil && d.PhotoURI != "" {
		return d.PhotoURI
	}
	return ""
}

// SelectPhotoID only exists for local contacts.
func SelectPhotoID(info domain.LookupInfo) int64 {
	if c := info.Contacts; c != nil {
		return c.PhotoID
	}
	return 0
}

func SelectLookupURI(info domain.LookupInfo) string {
	if c := info.Contacts; c != nil && c.LookupURI != "" {
		return c.LookupURI
	}
	if d := info.Directory; d != nil && d.LookupURI != "" {
		return d.LookupURI
	}
	return ""
}

func SelectNumberTypeLabel(info domain.LookupInfo) string {
	if c := info.Contacts; c != nil && c.NumberTypeLabel != "" {
		return c.NumberTypeLabel
	}
	if d := info.Directory; d != nil && d.NumberTypeLabel != "" {
		return d.NumberTypeLabel
	}
	return ""
}

// SelectCanReportAsInvalid is false whenever a local contact matched: the
// user vouched for that number.
func SelectCanReportAsInvalid(info domain.LookupInfo) bool {
	if c := info.Contacts; c != nil && c.Name != "" {
		return false
	}
	if d := info.Directory; d != nil {
		return d.CanReportAsInvalid
	}
	return false
}

func SelectIsBusiness(info domain.LookupInfo) bool {
	if c := info.Contacts; c != nil && c.Name != "" {
		return false
	}
	if d := info.Directory; d != nil {
		return d.IsBusiness
	}
	return false
}

func SelectIsVoicemail(info domain.LookupInfo) bool {
	return info.Voicemail != nil && info.Voicemail.IsVoicemail
}

// DisplayFields assembles every selected attribute plus the encoded info and
// its completeness.
func DisplayFields(info domain.LookupInfo) domain.Fields {
	encoded, err := domain.MarshalLookupInfo(info)
	if err != nil {
		encoded = ""
	}
	return domain.Fields{
		domain.ColPrimaryText:        SelectName(info),
		domain.ColPhotoURI:           SelectPhotoURI(info),
		domain.ColPhotoID:            SelectPhotoID(info),
		domain.ColLookupURI:          SelectLookupURI(info),
		domain.ColNumberTypeLabel:    SelectNumberTypeLabel(info),
		domain.ColCanReportAsInvalid: SelectCanReportAsInvalid(info),
		domain.ColIsBusiness:         SelectIsBusiness(info),
		domain.ColIsVoicemailNumber:  SelectIsVoicemail(info),
		domain.ColLookupInfo:         encoded,
		domain.ColLookupComplete:     info.IsComplete(),
	}
}
