package refresh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calllog_server/adapter/out/persistence"
	"calllog_server/core/domain"
	"calllog_server/core/port/out"
	"calllog_server/core/service/common"
	"calllog_server/core/service/datasource"
	"calllog_server/core/service/lookup"
	"calllog_server/core/service/realtime"
	"calllog_server/infra/database"
)

func TestRefresh_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()

	db, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))

	system := persistence.NewSystemCallLogAdapter(db)
	annotated := persistence.NewAnnotatedCallLogAdapter(db)
	contacts := persistence.NewContactsLookupAdapter(db)
	history := persistence.NewPhoneLookupHistoryAdapter(db)
	prefs := common.NewPreferences(persistence.NewKeyValueAdapter(db))

	require.NoError(t, contacts.SaveContact(ctx, persistence.ContactRecord{
		ID:          1,
		DisplayName: "Alice",
		LookupKey:   "alice",
		UpdatedAt:   100,
		Phones:      map[string]string{"+16502530000": "Mobile"},
	}))
	for _, r := range []domain.SystemCallRow{
		{ID: 10, Timestamp: 2000, LastModified: 2000, Number: "(650) 253-0000", CountryISO: "US", CallType: int(domain.CallTypeIncoming)},
		{ID: 11, Timestamp: 1000, LastModified: 1000, Number: "650 253 0000", CountryISO: "US", CallType: int(domain.CallTypeMissed)},
	} {
		require.NoError(t, system.Upsert(ctx, r))
	}

	composite := lookup.NewComposite([]out.LookupProvider{contacts}, 2)
	svc := NewService([]out.DataSource{
		datasource.NewSystemSource(system, annotated, prefs, 0, "US"),
		datasource.NewPhoneLookupSource(composite, history, annotated, prefs, "US"),
	}, annotated, prefs)
	t.Cleanup(svc.Close)

	dirty, err := svc.IsDirty(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)

	require.NoError(t, svc.RefreshWithDirtyCheck(ctx))

	rows, err := annotated.ListRows(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(10), rows[0].ID)
	assert.Equal(t, int64(11), rows[1].ID)
	for _, r := range rows {
		assert.Equal(t, "Alice", r.PrimaryText)
		assert.Equal(t, "Mobile", r.NumberTypeLabel)
		assert.Equal(t, "+16502530000", r.NormalizedNumber)
		assert.True(t, r.LookupComplete)
	}

	dirty, err = svc.IsDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	// deleting a native row is picked up by the count check
	require.NoError(t, system.Delete(ctx, []int64{11}))
	dirty, err = svc.IsDirty(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)

	require.NoError(t, svc.RefreshWithDirtyCheck(ctx))
	ids, err := annotated.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids)
}

func TestRefresh_SQLiteDrainsBacklogSharingModificationTime(t *testing.T) {
	ctx := context.Background()

	db, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))

	system := persistence.NewSystemCallLogAdapter(db)
	annotated := persistence.NewAnnotatedCallLogAdapter(db)
	prefs := common.NewPreferences(persistence.NewKeyValueAdapter(db))

	// one ingest request stamps every row with the same last_modified
	for id := int64(1); id <= 5; id++ {
		require.NoError(t, system.Upsert(ctx, domain.SystemCallRow{
			ID: id, Timestamp: id * 1000, LastModified: 5000, Number: "6502530000", CountryISO: "US",
			CallType: int(domain.CallTypeIncoming),
		}))
	}

	svc := NewService([]out.DataSource{
		datasource.NewSystemSource(system, annotated, prefs, 2, "US"),
	}, annotated, prefs)
	t.Cleanup(svc.Close)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.RefreshWithDirtyCheck(ctx))
	}

	ids, err := annotated.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)

	dirty, err := svc.IsDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
}

// stubDirectory answers Lookup from names and, like the people directory,
// keeps existing sub-records on bulk update while flagging new numbers
// incomplete.
type stubDirectory struct {
	names map[string]string
}

func (s *stubDirectory) Source() domain.LookupSource { return domain.LookupSourceDirectory }

func (s *stubDirectory) Lookup(ctx context.Context, number domain.DialerPhoneNumber) (domain.LookupInfo, error) {
	return domain.LookupInfo{Directory: &domain.DirectoryInfo{Name: s.names[number.Key()]}}, nil
}

func (s *stubDirectory) IsDirty(ctx context.Context, numbers []domain.DialerPhoneNumber, since int64) (bool, error) {
	return false, nil
}

func (s *stubDirectory) BulkUpdate(ctx context.Context, existing map[string]domain.LookupInfo, since int64) (map[string]domain.LookupInfo, error) {
	out := make(map[string]domain.LookupInfo, len(existing))
	for n, info := range existing {
		sub := info.SubRecord(domain.LookupSourceDirectory)
		if sub.Directory == nil {
			sub.Directory = &domain.DirectoryInfo{Incomplete: true}
		}
		out[n] = sub
	}
	return out, nil
}

func (s *stubDirectory) OnSuccessfulBulkUpdate(ctx context.Context) error { return nil }

func TestRefresh_SQLiteRebuildPicksUpRealtimeWriteBack(t *testing.T) {
	const bob = "+16502530001"
	ctx := context.Background()

	db, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))

	system := persistence.NewSystemCallLogAdapter(db)
	annotated := persistence.NewAnnotatedCallLogAdapter(db)
	contacts := persistence.NewContactsLookupAdapter(db)
	history := persistence.NewPhoneLookupHistoryAdapter(db)
	prefs := common.NewPreferences(persistence.NewKeyValueAdapter(db))

	require.NoError(t, system.Upsert(ctx, domain.SystemCallRow{
		ID: 10, Timestamp: 1000, LastModified: 1000, Number: "650-253-0001", CountryISO: "US",
		CallType: int(domain.CallTypeIncoming),
	}))

	composite := lookup.NewComposite([]out.LookupProvider{contacts, &stubDirectory{names: map[string]string{bob: "Bob"}}}, 2)
	svc := NewService([]out.DataSource{
		datasource.NewSystemSource(system, annotated, prefs, 0, "US"),
		datasource.NewPhoneLookupSource(composite, history, annotated, prefs, "US"),
	}, annotated, prefs)
	t.Cleanup(svc.Close)

	require.NoError(t, svc.RefreshWithDirtyCheck(ctx))
	rows, err := annotated.ListRows(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.False(t, rows[0].LookupComplete)

	processor := realtime.NewProcessor(composite, common.NewLookupCache(nil), history, realtime.Config{
		UserCountryISO: "US",
		WriteBack:      true,
	})
	t.Cleanup(processor.Close)

	enriched, err := processor.Enrich(ctx, domain.CoalescedRow{
		ID:     10,
		IDs:    []int64{10},
		Fields: domain.Fields{domain.ColNormalizedNumber: bob},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bob", enriched.Fields.String(domain.ColPrimaryText))
	require.NoError(t, processor.Flush(ctx))

	require.NoError(t, svc.RefreshWithoutDirtyCheck(ctx))
	rows, err = annotated.ListRows(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0].PrimaryText)
	assert.True(t, rows[0].LookupComplete)
}
