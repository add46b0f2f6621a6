package persistence

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calllog_server/core/domain"
	"calllog_server/infra/database"
	"calllog_server/pkg/apperr"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
	return db
}

func TestAnnotatedCallLogAdapter_Apply(t *testing.T) {
	ctx := context.Background()
	adapter := NewAnnotatedCallLogAdapter(newTestDB(t))

	m := domain.NewMutationSet()
	require.NoError(t, m.Insert(10, domain.Fields{
		domain.ColTimestamp:        int64(2000),
		domain.ColNumber:           "555-0100",
		domain.ColNormalizedNumber: "+15550100",
		domain.ColPrimaryText:      "Alice",
		domain.ColIsRead:           true,
	}))
	require.NoError(t, m.Insert(11, domain.Fields{
		domain.ColTimestamp:        int64(1000),
		domain.ColNormalizedNumber: "+15550100",
	}))
	require.NoError(t, adapter.Apply(ctx, m))

	rows, err := adapter.ListRows(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(10), rows[0].ID)
	assert.Equal(t, "Alice", rows[0].PrimaryText)
	assert.True(t, rows[0].IsRead)
	assert.False(t, rows[1].IsRead)

	// update, delete and a full-row re-insert in one set
	m2 := domain.NewMutationSet()
	require.NoError(t, m2.Update(10, domain.Fields{domain.ColIsSpam: true}))
	m2.Delete(11)
	require.NoError(t, adapter.Apply(ctx, m2))

	rows, err = adapter.ListRows(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsSpam)
	assert.Equal(t, "Alice", rows[0].PrimaryText)

	m3 := domain.NewMutationSet()
	require.NoError(t, m3.Insert(10, domain.Fields{domain.ColTimestamp: int64(3000)}))
	require.NoError(t, adapter.Apply(ctx, m3))

	rows, err = adapter.ListRows(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3000), rows[0].Timestamp)
	assert.Equal(t, "", rows[0].PrimaryText, "insert replaces the whole row")
	assert.False(t, rows[0].IsSpam)
}

func TestAnnotatedCallLogAdapter_ApplyRejectsUnknownColumn(t *testing.T) {
	ctx := context.Background()
	adapter := NewAnnotatedCallLogAdapter(newTestDB(t))

	m := domain.NewMutationSet()
	require.NoError(t, m.Insert(1, domain.Fields{domain.ColTimestamp: int64(1)}))
	require.NoError(t, m.Insert(2, domain.Fields{"bogus": "x"}))

	err := adapter.Apply(ctx, m)
	require.Error(t, err)
	assert.True(t, apperr.IsContractViolation(err))

	n, err := adapter.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "nothing is applied")
}

func TestAnnotatedCallLogAdapter_Readers(t *testing.T) {
	ctx := context.Background()
	adapter := NewAnnotatedCallLogAdapter(newTestDB(t))

	m := domain.NewMutationSet()
	require.NoError(t, m.Insert(1, domain.Fields{
		domain.ColNormalizedNumber: "+1", domain.ColLookupInfo: `{"contacts":{}}`, domain.ColLookupComplete: true,
	}))
	require.NoError(t, m.Insert(2, domain.Fields{domain.ColNormalizedNumber: "+1"}))
	require.NoError(t, m.Insert(3, domain.Fields{domain.ColNormalizedNumber: "+2"}))
	require.NoError(t, m.Insert(4, domain.Fields{}))
	require.NoError(t, adapter.Apply(ctx, m))

	ids, err := adapter.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)

	states, err := adapter.LookupStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.RowLookupState{
		{ID: 1, NormalizedNumber: "+1", LookupInfo: `{"contacts":{}}`, LookupComplete: true},
		{ID: 2, NormalizedNumber: "+1"},
		{ID: 3, NormalizedNumber: "+2"},
	}, states)

	numbers, err := adapter.DistinctNumbers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"+1", "+2"}, numbers)
}

func TestSystemCallLogAdapter(t *testing.T) {
	ctx := context.Background()
	adapter := NewSystemCallLogAdapter(newTestDB(t))

	for _, r := range []domain.SystemCallRow{
		{ID: 1, Timestamp: 100, LastModified: 500, Number: "555"},
		{ID: 2, Timestamp: 300, LastModified: 200, Number: "555"},
		{ID: 3, Timestamp: 200, LastModified: 300, Number: "666", IsRead: true},
	} {
		require.NoError(t, adapter.Upsert(ctx, r))
	}

	// capped batch is taken in modification order, returned newest-first
	rows, err := adapter.QueryModifiedSince(ctx, domain.ModifiedCursor{LastModified: 100}, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].ID)
	assert.Equal(t, int64(3), rows[1].ID)
	assert.True(t, rows[1].IsRead)

	has, err := adapter.HasModifiedSince(ctx, domain.ModifiedCursor{LastModified: 400})
	require.NoError(t, err)
	assert.True(t, has)
	has, err = adapter.HasModifiedSince(ctx, domain.ModifiedCursor{LastModified: 500, ID: 1})
	require.NoError(t, err)
	assert.False(t, has)

	// rows sharing last_modified continue past the cursor id
	require.NoError(t, adapter.Upsert(ctx, domain.SystemCallRow{ID: 4, Timestamp: 400, LastModified: 500, Number: "777"}))
	has, err = adapter.HasModifiedSince(ctx, domain.ModifiedCursor{LastModified: 500, ID: 1})
	require.NoError(t, err)
	assert.True(t, has)
	rows, err = adapter.QueryModifiedSince(ctx, domain.ModifiedCursor{LastModified: 500, ID: 1}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), rows[0].ID)

	require.NoError(t, adapter.Delete(ctx, []int64{2}))
	live, err := adapter.ExistingIDs(ctx, []int64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3, 4}, live)

	n, err := adapter.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestKeyValueAdapter(t *testing.T) {
	ctx := context.Background()
	kv := NewKeyValueAdapter(newTestDB(t))

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Put(ctx, "k", "1"))
	require.NoError(t, kv.Put(ctx, "k", "2"))

	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestPhoneLookupHistoryAdapter(t *testing.T) {
	ctx := context.Background()
	history := NewPhoneLookupHistoryAdapter(newTestDB(t))

	require.NoError(t, history.Upsert(ctx, map[string]domain.LookupInfo{
		"+1": {Contacts: &domain.ContactsInfo{Name: "Alice"}},
		"+2": {},
	}, 10))

	got, err := history.Get(ctx, []string{"+1", "+2", "+3"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alice", got["+1"].Contacts.Name)
	assert.True(t, got["+2"].IsEmpty())

	require.NoError(t, history.Delete(ctx, []string{"+2"}))
	numbers, err := history.Numbers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"+1"}, numbers)
}

func TestContactsLookupAdapter(t *testing.T) {
	ctx := context.Background()
	contacts := NewContactsLookupAdapter(newTestDB(t))

	require.NoError(t, contacts.SaveContact(ctx, ContactRecord{
		ID: 1, DisplayName: "Alice", LookupKey: "abc", UpdatedAt: 100,
		Phones: map[string]string{"+16502530000": "Mobile"},
	}))

	number := domain.NewDialerPhoneNumber("650-253-0000", "US")
	info, err := contacts.Lookup(ctx, number)
	require.NoError(t, err)
	require.NotNil(t, info.Contacts)
	assert.Equal(t, "Alice", info.Contacts.Name)
	assert.Equal(t, "Mobile", info.Contacts.NumberTypeLabel)
	assert.Equal(t, "content://contacts/lookup/abc/1", info.Contacts.LookupURI)

	dirty, err := contacts.IsDirty(ctx, []domain.DialerPhoneNumber{number}, 100)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, contacts.DeleteContact(ctx, 1, 200))
	dirty, err = contacts.IsDirty(ctx, []domain.DialerPhoneNumber{number}, 100)
	require.NoError(t, err)
	assert.True(t, dirty)

	result, err := contacts.BulkUpdate(ctx, map[string]domain.LookupInfo{
		"+16502530000": {Contacts: &domain.ContactsInfo{Name: "Alice"}},
	}, 100)
	require.NoError(t, err)
	require.Contains(t, result, "+16502530000")
	assert.Nil(t, result["+16502530000"].Contacts)
}
