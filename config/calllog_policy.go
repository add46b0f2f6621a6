package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"calllog_server/pkg/apperr"
)

// PolicyConfig tunes the row coalescer.
type PolicyConfig struct {
	// SplitByDay keeps rows of different calendar days in separate groups.
	SplitByDay bool
	// SplitByPhoneAccount keeps rows placed through different accounts apart.
	SplitByPhoneAccount bool
	// SplitVoicemail keeps voicemails apart from ordinary calls.
	SplitVoicemail bool
	// CallTypeHistory caps the outcome history of a coalesced row.
	CallTypeHistory int
}

type policyFile struct {
	Coalescing struct {
		SplitByDay          *bool `yaml:"split_by_day"`
		SplitByPhoneAccount *bool `yaml:"split_by_phone_account"`
		SplitVoicemail      *bool `yaml:"split_voicemail"`
		CallTypeHistory     *int  `yaml:"call_type_history"`
	} `yaml:"coalescing"`
}

func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		SplitByDay:          true,
		SplitByPhoneAccount: true,
		SplitVoicemail:      true,
		CallTypeHistory:     3,
	}
}

// LoadPolicy reads a YAML policy file. Keys absent from the file keep their
// defaults.
func LoadPolicy(path string) (PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyConfig{}, apperr.ConfigError(fmt.Sprintf("read policy file %s: %v", path, err))
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML policy bytes over the defaults.
func ParsePolicy(data []byte) (PolicyConfig, error) {
	policy := DefaultPolicy()

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return PolicyConfig{}, apperr.ConfigError(fmt.Sprintf("parse policy: %v", err))
	}

	c := file.Coalescing
	if c.SplitByDay != nil {
		policy.SplitByDay = *c.SplitByDay
	}
	if c.SplitByPhoneAccount != nil {
		policy.SplitByPhoneAccount = *c.SplitByPhoneAccount
	}
	if c.SplitVoicemail != nil {
		policy.SplitVoicemail = *c.SplitVoicemail
	}
	if c.CallTypeHistory != nil {
		if *c.CallTypeHistory < 1 {
			return PolicyConfig{}, apperr.ConfigError("call_type_history must be at least 1")
		}
		policy.CallTypeHistory = *c.CallTypeHistory
	}
	return policy, nil
}
