package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calllog_server/pkg/crypto"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    PolicyConfig
		wantErr bool
	}{
		{
			name: "empty keeps defaults",
			yaml: "",
			want: DefaultPolicy(),
		},
		{
			name: "partial override",
			yaml: "coalescing:\n  split_by_day: false\n  call_type_history: 5\n",
			want: PolicyConfig{SplitByDay: false, SplitByPhoneAccount: true, SplitVoicemail: true, CallTypeHistory: 5},
		},
		{
			name:    "zero history rejected",
			yaml:    "coalescing:\n  call_type_history: 0\n",
			wantErr: true,
		},
		{
			name:    "malformed",
			yaml:    "coalescing: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePolicy([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte("coalescing:\n  split_voicemail: false\n"), 0o600))

	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("REFRESH_INTERVAL_SEC", "15")
	t.Setenv("VOICEMAIL_NUMBERS", " *86 , +15550001111,")
	t.Setenv("DEFAULT_COUNTRY_ISO", "kr")
	t.Setenv("POLICY_FILE", policyPath)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 15*time.Second, cfg.RefreshInterval)
	assert.Equal(t, []string{"*86", "+15550001111"}, cfg.VoicemailNumbers)
	assert.Equal(t, "KR", cfg.DefaultCountryISO)
	assert.False(t, cfg.Policy.SplitVoicemail)
	assert.True(t, cfg.Policy.SplitByDay)
	assert.Equal(t, 1000, cfg.RefreshBatchLimit)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")
	t.Setenv("DATABASE_URL", "x")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_PreferencesStore(t *testing.T) {
	tests := []struct {
		name    string
		store   string
		redis   string
		wantErr bool
	}{
		{name: "sql default", store: ""},
		{name: "redis with url", store: "redis", redis: "redis://localhost:6379/0"},
		{name: "redis without url", store: "redis", wantErr: true},
		{name: "unknown", store: "etcd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_DRIVER", "sqlite")
			t.Setenv("DATABASE_URL", "file::memory:")
			t.Setenv("PREFERENCES_STORE", tt.store)
			t.Setenv("REDIS_URL", tt.redis)

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, cfg.RealtimeWriteBack)
			assert.Equal(t, 10*time.Second, cfg.RealtimeLookupTimeout)
		})
	}
}

func TestLoad_SealedDirectoryToken(t *testing.T) {
	sealed, err := crypto.Seal("1//refresh", "k")
	require.NoError(t, err)

	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("DIRECTORY_REFRESH_TOKEN", sealed)

	t.Setenv("ENCRYPTION_KEY", "")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("ENCRYPTION_KEY", "k")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "1//refresh", cfg.DirectoryRefreshToken)
}
