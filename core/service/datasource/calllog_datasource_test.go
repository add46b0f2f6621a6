package datasource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calllog_server/core/domain"
	"calllog_server/core/service/common"
)

func sysRow(id, ts, modified int64, number string) domain.SystemCallRow {
	return domain.SystemCallRow{
		ID:           id,
		Timestamp:    ts,
		LastModified: modified,
		Number:       number,
		CountryISO:   "US",
		CallType:     int(domain.CallTypeIncoming),
	}
}

func TestSystemSource_IsDirty(t *testing.T) {
	tests := []struct {
		name      string
		watermark string
		system    *fakeSystem
		annotated int
		want      bool
	}{
		{"no watermark", "", &fakeSystem{}, 0, true},
		{"modified rows", "100", &fakeSystem{modified: true, count: 1}, 1, true},
		{"count differs after delete", "100", &fakeSystem{count: 1}, 2, true},
		{"clean", "100", &fakeSystem{count: 2}, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newMemKV()
			if tt.watermark != "" {
				kv.data[common.KeySystemLastTimestamp] = tt.watermark
			}
			annotated := &fakeAnnotated{}
			for i := 0; i < tt.annotated; i++ {
				annotated.rows = append(annotated.rows, domain.AnnotatedRow{ID: int64(i + 1)})
			}
			src := NewSystemSource(tt.system, annotated, common.NewPreferences(kv), 0, "US")

			got, err := src.IsDirty(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSystemSource_FillPartitionsRows(t *testing.T) {
	system := &fakeSystem{
		rows: []domain.SystemCallRow{
			sysRow(3, 3000, 30, "(650) 253-0000"),
			sysRow(2, 2000, 20, "650-253-0001"),
		},
		live: []int64{2, 3},
	}
	annotated := &fakeAnnotated{rows: []domain.AnnotatedRow{{ID: 1}, {ID: 2}}}
	kv := newMemKV()
	src := NewSystemSource(system, annotated, common.NewPreferences(kv), 0, "US")

	m := domain.NewMutationSet()
	require.NoError(t, src.Fill(context.Background(), m))

	assert.Equal(t, []int64{3}, m.Inserts())
	assert.Equal(t, []int64{2}, m.Updates())
	assert.Equal(t, []int64{1}, m.Deletes())

	f, ok := m.InsertFields(3)
	require.True(t, ok)
	assert.Equal(t, "+16502530000", f.String(domain.ColNormalizedNumber))
	assert.Equal(t, "(650) 253-0000", f.String(domain.ColFormattedNumber))
	assert.Equal(t, int64(3000), f.Int64(domain.ColTimestamp))

	// watermark only moves on commit
	assert.NotContains(t, kv.data, common.KeySystemLastTimestamp)
	require.NoError(t, src.OnSuccessfulFill(context.Background()))
	assert.Equal(t, "30", kv.data[common.KeySystemLastTimestamp])
	assert.Equal(t, "3", kv.data[common.KeySystemLastID])
}

func TestSystemSource_DrainsTiedModificationTimes(t *testing.T) {
	ctx := context.Background()
	system := &fakeSystem{
		rows: []domain.SystemCallRow{
			sysRow(1, 1000, 5000, "+16502530000"),
			sysRow(2, 2000, 5000, "+16502530000"),
			sysRow(3, 3000, 5000, "+16502530000"),
		},
		live:  []int64{1, 2, 3},
		count: 3,
	}
	annotated := &fakeAnnotated{}
	src := NewSystemSource(system, annotated, common.NewPreferences(newMemKV()), 2, "US")

	var batches [][]int64
	for i := 0; i < 3; i++ {
		m := domain.NewMutationSet()
		require.NoError(t, src.Fill(ctx, m))
		batches = append(batches, m.Inserts())
		for _, id := range m.Inserts() {
			annotated.rows = append(annotated.rows, domain.AnnotatedRow{ID: id})
		}
		require.NoError(t, src.OnSuccessfulFill(ctx))
	}

	assert.Equal(t, [][]int64{{1, 2}, {3}, {}}, batches)
	dirty, err := src.IsDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestSystemSource_FillIsIdempotent(t *testing.T) {
	system := &fakeSystem{
		rows: []domain.SystemCallRow{sysRow(5, 5000, 50, "+16502530000")},
		live: []int64{5},
	}
	annotated := &fakeAnnotated{rows: []domain.AnnotatedRow{{ID: 4}}}
	src := NewSystemSource(system, annotated, common.NewPreferences(newMemKV()), 0, "US")

	once := domain.NewMutationSet()
	require.NoError(t, src.Fill(context.Background(), once))

	twice := domain.NewMutationSet()
	require.NoError(t, src.Fill(context.Background(), twice))
	require.NoError(t, src.Fill(context.Background(), twice))

	assert.Equal(t, once.Inserts(), twice.Inserts())
	assert.Equal(t, once.Updates(), twice.Updates())
	assert.Equal(t, once.Deletes(), twice.Deletes())
	a, _ := once.InsertFields(5)
	b, _ := twice.InsertFields(5)
	assert.True(t, a.Equal(b))
}

func TestSystemSource_Coalesce(t *testing.T) {
	src := NewSystemSource(&fakeSystem{}, &fakeAnnotated{}, common.NewPreferences(newMemKV()), 0, "US")

	got := src.Coalesce([]domain.Fields{
		{domain.ColDuration: int64(10), domain.ColFeatures: domain.FeatureVideo, domain.ColIsRead: true, domain.ColNew: false},
		{domain.ColDuration: int64(99), domain.ColFeatures: domain.FeatureWifi, domain.ColIsRead: false, domain.ColNew: true},
	})

	assert.Equal(t, int64(10), got.Int64(domain.ColDuration))
	assert.Equal(t, domain.FeatureVideo|domain.FeatureWifi, got.Int64(domain.ColFeatures))
	assert.False(t, got.Bool(domain.ColIsRead))
	assert.True(t, got.Bool(domain.ColNew))
}

func TestPhoneLookupSource_Fill(t *testing.T) {
	const alice, bob, gone = "+16502530000", "+16502530001", "+16502539999"

	bobInfo := domain.LookupInfo{Contacts: &domain.ContactsInfo{Name: "Bob"}}
	bobJSON, err := domain.MarshalLookupInfo(bobInfo)
	require.NoError(t, err)
	annotated := &fakeAnnotated{rows: []domain.AnnotatedRow{
		{ID: 1, NormalizedNumber: bob, LookupInfo: bobJSON, LookupComplete: true},
	}}
	history := &fakeHistory{entries: map[string]domain.LookupInfo{
		bob:  bobInfo,
		gone: {},
	}}
	bulk := &fakeBulk{names: map[string]string{alice: "Alice", bob: "Bob"}}
	kv := newMemKV()
	src := NewPhoneLookupSource(bulk, history, annotated, common.NewPreferences(kv), "US")
	src.now = func() time.Time { return time.UnixMilli(5000) }

	m := domain.NewMutationSet()
	require.NoError(t, m.Insert(2, domain.Fields{domain.ColNormalizedNumber: alice}))
	require.NoError(t, src.Fill(context.Background(), m))

	f, ok := m.InsertFields(2)
	require.True(t, ok)
	assert.Equal(t, "Alice", f.String(domain.ColPrimaryText))
	assert.True(t, f.Bool(domain.ColLookupComplete))

	// row 1 already carries bob's info
	assert.False(t, m.IsUpdated(1))

	require.NoError(t, src.OnSuccessfulFill(context.Background()))
	assert.Equal(t, "Alice", history.entries[alice].Contacts.Name)
	assert.Equal(t, []string{gone}, history.deleted)
	assert.Equal(t, 1, bulk.committed)
	assert.Equal(t, "5000", kv.data[common.KeyPhoneLookupLastUpdated])
}

func TestPhoneLookupSource_RewritesRowsBehindHistory(t *testing.T) {
	const bob = "+16502530001"

	// history already holds the complete info, the row still the stale one
	bobInfo := domain.LookupInfo{Contacts: &domain.ContactsInfo{Name: "Bob"}}
	stale, err := domain.MarshalLookupInfo(domain.LookupInfo{})
	require.NoError(t, err)
	annotated := &fakeAnnotated{rows: []domain.AnnotatedRow{
		{ID: 1, NormalizedNumber: bob, LookupInfo: stale, LookupComplete: false},
		{ID: 2, NormalizedNumber: bob, LookupInfo: "not json", LookupComplete: true},
	}}
	history := &fakeHistory{entries: map[string]domain.LookupInfo{bob: bobInfo}}
	bulk := &fakeBulk{names: map[string]string{bob: "Bob"}}
	src := NewPhoneLookupSource(bulk, history, annotated, common.NewPreferences(newMemKV()), "US")

	m := domain.NewMutationSet()
	require.NoError(t, src.Fill(context.Background(), m))

	assert.Equal(t, []int64{1, 2}, m.Updates())
	f, ok := m.UpdateFields(1)
	require.True(t, ok)
	assert.Equal(t, "Bob", f.String(domain.ColPrimaryText))
	assert.True(t, f.Bool(domain.ColLookupComplete))
}

func TestPhoneLookupSource_IsDirtyPassesWatermark(t *testing.T) {
	annotated := &fakeAnnotated{rows: []domain.AnnotatedRow{{ID: 1, NormalizedNumber: "+16502530000"}}}
	bulk := &fakeBulk{dirty: true}
	kv := newMemKV()
	kv.data[common.KeyPhoneLookupLastUpdated] = "1234"
	src := NewPhoneLookupSource(bulk, &fakeHistory{entries: map[string]domain.LookupInfo{}}, annotated, common.NewPreferences(kv), "US")

	dirty, err := src.IsDirty(context.Background())
	require.NoError(t, err)
	assert.True(t, dirty)
	assert.Equal(t, int64(1234), bulk.since)
}

func TestVoicemailSource_FillOnlyOwnedRows(t *testing.T) {
	store := &fakeVoicemails{vms: []domain.Voicemail{
		{CallID: 1, URI: "vm://1", Transcription: "call me back", ModifiedAt: 10},
		{CallID: 2, URI: "vm://2", ModifiedAt: 20},
		{CallID: 99, URI: "vm://99", ModifiedAt: 30},
	}}
	annotated := &fakeAnnotated{rows: []domain.AnnotatedRow{{ID: 1}}}
	kv := newMemKV()
	src := NewVoicemailSource(store, annotated, common.NewPreferences(kv))

	m := domain.NewMutationSet()
	require.NoError(t, m.Insert(2, domain.Fields{domain.ColNumber: "555"}))
	require.NoError(t, src.Fill(context.Background(), m))

	assert.Equal(t, []int64{1}, m.Updates())
	f, _ := m.UpdateFields(1)
	assert.Equal(t, "call me back", f.String(domain.ColTranscription))

	ins, _ := m.InsertFields(2)
	assert.Equal(t, "vm://2", ins.String(domain.ColVoicemailURI))
	assert.False(t, m.Contains(99))

	require.NoError(t, src.OnSuccessfulFill(context.Background()))
	assert.Equal(t, "30", kv.data[common.KeyVoicemailLastModified])

	dirty, err := src.IsDirty(context.Background())
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestSpamSource_Fill(t *testing.T) {
	const spammer, friend = "+16502530000", "+16502530001"

	tests := []struct {
		name        string
		stored      string
		wantUpdated []int64
	}{
		{"version moved re-evaluates committed rows", "1", []int64{1}},
		{"same version only flags new rows", "2", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := &fakeSpam{version: 2, spam: map[string]bool{spammer: true}}
			annotated := &fakeAnnotated{rows: []domain.AnnotatedRow{
				{ID: 1, NormalizedNumber: spammer},
				{ID: 2, NormalizedNumber: friend},
			}}
			kv := newMemKV()
			kv.data[common.KeySpamLastVersion] = tt.stored
			src := NewSpamSource(signals, annotated, common.NewPreferences(kv))

			m := domain.NewMutationSet()
			require.NoError(t, m.Insert(3, domain.Fields{domain.ColNormalizedNumber: spammer}))
			require.NoError(t, src.Fill(context.Background(), m))

			assert.Equal(t, nonNil(tt.wantUpdated), m.Updates())
			f, _ := m.InsertFields(3)
			assert.True(t, f.Bool(domain.ColIsSpam))
			assert.False(t, f.Bool(domain.ColIsBlocked))

			require.NoError(t, src.OnSuccessfulFill(context.Background()))
			assert.Equal(t, "2", kv.data[common.KeySpamLastVersion])
		})
	}
}

func TestVoicemailSource_VoicemailBeforeCallRow(t *testing.T) {
	ctx := context.Background()
	store := &fakeVoicemails{vms: []domain.Voicemail{
		{CallID: 10, URI: "vm://10", Transcription: "it's me", ModifiedAt: 100},
	}}
	annotated := &fakeAnnotated{}
	kv := newMemKV()
	src := NewVoicemailSource(store, annotated, common.NewPreferences(kv))

	// the call row is still in the system backlog
	first := domain.NewMutationSet()
	require.NoError(t, src.Fill(ctx, first))
	assert.True(t, first.IsEmpty())
	require.NoError(t, src.OnSuccessfulFill(ctx))
	assert.Equal(t, "100", kv.data[common.KeyVoicemailLastModified])

	second := domain.NewMutationSet()
	require.NoError(t, second.Insert(10, domain.Fields{domain.ColNumber: "555"}))
	require.NoError(t, src.Fill(ctx, second))

	f, ok := second.InsertFields(10)
	require.True(t, ok)
	assert.Equal(t, "vm://10", f.String(domain.ColVoicemailURI))
	assert.Equal(t, "it's me", f.String(domain.ColTranscription))
	assert.Equal(t, [][]int64{{10}}, store.byID)
}

func TestCoalesce_VoicemailAndLookupTakeNewest(t *testing.T) {
	vm := NewVoicemailSource(&fakeVoicemails{}, &fakeAnnotated{}, common.NewPreferences(newMemKV()))
	got := vm.Coalesce([]domain.Fields{
		{domain.ColVoicemailURI: ""},
		{domain.ColVoicemailURI: "vm://old", domain.ColTranscription: "hi"},
	})
	assert.Equal(t, "vm://old", got.String(domain.ColVoicemailURI))

	pl := NewPhoneLookupSource(&fakeBulk{}, &fakeHistory{}, &fakeAnnotated{}, common.NewPreferences(newMemKV()), "US")
	got = pl.Coalesce([]domain.Fields{
		{domain.ColPrimaryText: "Alice", domain.ColDuration: int64(3)},
		{domain.ColPrimaryText: "Stale"},
	})
	assert.Equal(t, "Alice", got.String(domain.ColPrimaryText))
	assert.False(t, got.Has(domain.ColDuration))
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
