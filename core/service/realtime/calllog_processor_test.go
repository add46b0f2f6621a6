package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calllog_server/core/domain"
	"calllog_server/core/service/common"
)

type fakeLookuper struct {
	calls   int32
	delay   time.Duration
	err     error
	name    string
	started chan struct{}
	release chan struct{}

	cancelledCalls int32
}

func (f *fakeLookuper) Lookup(ctx context.Context, number domain.DialerPhoneNumber) (domain.LookupInfo, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if ctx.Err() != nil {
		atomic.AddInt32(&f.cancelledCalls, 1)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return domain.LookupInfo{}, f.err
	}
	return domain.LookupInfo{Directory: &domain.DirectoryInfo{Name: f.name}}, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries map[string]domain.LookupInfo
}

func (f *fakeHistory) Get(ctx context.Context, numbers []string) (map[string]domain.LookupInfo, error) {
	return nil, nil
}

func (f *fakeHistory) Upsert(ctx context.Context, entries map[string]domain.LookupInfo, updatedAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for n, info := range entries {
		f.entries[n] = info
	}
	return nil
}

func (f *fakeHistory) Numbers(ctx context.Context) ([]string, error)      { return nil, nil }
func (f *fakeHistory) Delete(ctx context.Context, numbers []string) error { return nil }

func newProcessor(t *testing.T, l Lookuper, history *fakeHistory) *Processor {
	t.Helper()
	cache := common.NewLookupCache(&common.L1Config{MaxItems: 100, DefaultTTL: time.Minute})
	cfg := Config{MaxConcurrency: 4, UserCountryISO: "US"}

	var p *Processor
	if history != nil {
		cfg.WriteBack = true
		p = NewProcessor(l, cache, history, cfg)
	} else {
		p = NewProcessor(l, cache, nil, cfg)
	}
	t.Cleanup(p.Close)
	return p
}

func incompleteRow(id int64, number string) domain.CoalescedRow {
	return domain.CoalescedRow{
		ID:     id,
		IDs:    []int64{id},
		Fields: domain.Fields{domain.ColNormalizedNumber: number, domain.ColPrimaryText: ""},
	}
}

func TestProcessor_CompleteRowsSkipLookup(t *testing.T) {
	l := &fakeLookuper{name: "Bob"}
	p := newProcessor(t, l, nil)

	row := incompleteRow(1, "+16502530000")
	row.LookupComplete = true

	got, err := p.Enrich(context.Background(), row)
	require.NoError(t, err)
	assert.Equal(t, row, got)
	assert.Equal(t, int32(0), atomic.LoadInt32(&l.calls))
}

func TestProcessor_EnrichUsesCache(t *testing.T) {
	l := &fakeLookuper{name: "Bob"}
	history := &fakeHistory{entries: map[string]domain.LookupInfo{}}
	p := newProcessor(t, l, history)
	ctx := context.Background()

	got, err := p.Enrich(ctx, incompleteRow(1, "+16502530000"))
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Fields.String(domain.ColPrimaryText))
	assert.True(t, got.LookupComplete)

	require.NoError(t, p.Flush(ctx))
	_, err = p.Enrich(ctx, incompleteRow(2, "+16502530000"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&l.calls))

	history.mu.Lock()
	defer history.mu.Unlock()
	assert.Equal(t, "Bob", history.entries["+16502530000"].Directory.Name)
}

func TestProcessor_DeduplicatesInFlightLookups(t *testing.T) {
	l := &fakeLookuper{name: "Bob", delay: 50 * time.Millisecond}
	p := newProcessor(t, l, nil)

	rows := make([]domain.CoalescedRow, 8)
	for i := range rows {
		rows[i] = incompleteRow(int64(i+1), "+16502530000")
	}

	got, err := p.EnrichAll(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, got, 8)
	for i, r := range got {
		assert.Equal(t, int64(i+1), r.ID)
		assert.Equal(t, "Bob", r.Fields.String(domain.ColPrimaryText))
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&l.calls), int32(2))
}

func TestProcessor_ClearCacheWinsOverInFlightLookup(t *testing.T) {
	l := &fakeLookuper{name: "Bob", started: make(chan struct{}, 1), release: make(chan struct{})}
	p := newProcessor(t, l, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := p.Enrich(ctx, incompleteRow(1, "+16502530000"))
		done <- err
	}()

	<-l.started
	require.NoError(t, p.ClearCache(ctx))
	close(l.release)
	require.NoError(t, <-done)
	require.NoError(t, p.Flush(ctx))

	assert.Equal(t, 0, p.cache.Len())
}

func TestProcessor_LookupError(t *testing.T) {
	boom := errors.New("directory down")
	p := newProcessor(t, &fakeLookuper{err: boom}, nil)

	row := incompleteRow(1, "+16502530000")
	got, err := p.Enrich(context.Background(), row)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, row, got)

	_, err = p.EnrichAll(context.Background(), []domain.CoalescedRow{row})
	assert.ErrorIs(t, err, boom)
}

func TestProcessor_CancelledCallerDoesNotFailJoinedCaller(t *testing.T) {
	l := &fakeLookuper{name: "Bob", started: make(chan struct{}, 2), release: make(chan struct{})}
	p := newProcessor(t, l, nil)

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := p.Enrich(firstCtx, incompleteRow(1, "+16502530000"))
		first <- err
	}()
	<-l.started

	second := make(chan domain.CoalescedRow, 1)
	go func() {
		row, err := p.Enrich(context.Background(), incompleteRow(2, "+16502530000"))
		assert.NoError(t, err)
		second <- row
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(l.release)
	select {
	case row := <-second:
		assert.Equal(t, "Bob", row.Fields.String(domain.ColPrimaryText))
		assert.True(t, row.LookupComplete)
	case <-time.After(time.Second):
		t.Fatal("joined caller did not return")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&l.cancelledCalls))
}

func TestProcessor_LookupTimeoutBoundsSharedFlight(t *testing.T) {
	l := &blockingLookuper{}
	cache := common.NewLookupCache(&common.L1Config{MaxItems: 10, DefaultTTL: time.Minute})
	p := NewProcessor(l, cache, nil, Config{UserCountryISO: "US", LookupTimeout: 30 * time.Millisecond})
	t.Cleanup(p.Close)

	_, err := p.Enrich(context.Background(), incompleteRow(1, "+16502530000"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// blockingLookuper returns only when its context ends.
type blockingLookuper struct{}

func (blockingLookuper) Lookup(ctx context.Context, number domain.DialerPhoneNumber) (domain.LookupInfo, error) {
	<-ctx.Done()
	return domain.LookupInfo{}, ctx.Err()
}
