package provider

import (
	"context"

	"calllog_server/core/domain"
)

// VoicemailNumberProvider flags the configured voicemail access numbers.
type VoicemailNumberProvider struct {
	numbers map[string]struct{}
}

// NewVoicemailNumberProvider normalizes the configured numbers with
// countryISO.
func NewVoicemailNumberProvider(numbers []string, countryISO string) *VoicemailNumberProvider {
	set := make(map[string]struct{}, len(numbers))
	for _, raw := range numbers {
		n := domain.NewDialerPhoneNumber(raw, countryISO)
		if !n.IsEmpty() {
			set[n.Key()] = struct{}{}
		}
	}
	return &VoicemailNumberProvider{numbers: set}
}

func (p *VoicemailNumberProvider) Source() domain.LookupSource {
	return domain.LookupSourceVoicemail
}

func (p *VoicemailNumberProvider) Lookup(ctx context.Context, number domain.DialerPhoneNumber) (domain.LookupInfo, error) {
	return p.info(number.Key()), nil
}

func (p *VoicemailNumberProvider) IsDirty(ctx context.Context, numbers []domain.DialerPhoneNumber, since int64) (bool, error) {
	return false, nil
}

// BulkUpdate recomputes the flag so configuration changes take effect on the
// next rebuild.
func (p *VoicemailNumberProvider) BulkUpdate(ctx context.Context, existing map[string]domain.LookupInfo, since int64) (map[string]domain.LookupInfo, error) {
	out := make(map[string]domain.LookupInfo, len(existing))
	for number := range existing {
		out[number] = p.info(number)
	}
	return out, nil
}

func (p *VoicemailNumberProvider) OnSuccessfulBulkUpdate(ctx context.Context) error {
	return nil
}

func (p *VoicemailNumberProvider) info(key string) domain.LookupInfo {
	if _, ok := p.numbers[key]; ok {
		return domain.LookupInfo{Voicemail: &domain.VoicemailInfo{IsVoicemail: true}}
	}
	return domain.LookupInfo{}
}
