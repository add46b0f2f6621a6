package bootstrap

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calllog_server/config"
	"calllog_server/core/domain"
	"calllog_server/infra/database"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:             "test",
		DatabaseDriver:          database.DriverSQLite,
		DatabaseURL:             ":memory:",
		PreferencesStore:        "sql",
		RefreshInterval:         time.Minute,
		RefreshBatchLimit:       100,
		LookupMaxConcurrency:    2,
		RealtimeCacheMaxEntries: 10,
		RealtimeCacheTTL:        time.Minute,
		RealtimeWriteBack:       true,
		DefaultCountryISO:       "US",
		VoicemailNumbers:        []string{"+16505550100"},
		Policy:                  config.DefaultPolicy(),
	}
}

func TestNewDependencies_SQLiteOnly(t *testing.T) {
	deps, cleanup, err := NewDependencies(testConfig())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Redis)
	assert.Nil(t, deps.MongoDB)
	assert.Nil(t, deps.Producer)

	names := make([]string, 0)
	for _, s := range deps.RefreshService.Sources() {
		names = append(names, s.Name())
	}
	// optional stores are not configured
	assert.Equal(t, []string{"system_call_log", "phone_lookup"}, names)
	assert.Len(t, deps.Composite.Providers(), 2)
}

func TestNewAPI_RefreshAndList(t *testing.T) {
	deps, cleanup, err := NewDependencies(testConfig())
	require.NoError(t, err)
	defer cleanup()

	app, stop := NewAPI(deps, APIOptions{})
	defer stop()

	now := time.Now().UnixMilli()
	calls := fmt.Sprintf(`[
		{"id":1,"timestamp":%d,"number":"6502530000","call_type":%d},
		{"id":2,"timestamp":%d,"number":"6502530000","call_type":%d}]`,
		now-1000, int(domain.CallTypeIncoming), now, int(domain.CallTypeMissed))
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/ingest/calls", strings.NewReader(calls))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/api/v1/calllog/refresh?wait=true", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/calllog", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body struct {
		Data []domain.CoalescedRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, []int64{2, 1}, body.Data[0].IDs)
	assert.Equal(t, 2, body.Data[0].NumberCalls)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
