package datasource

import (
	"context"
	"sort"

	"calllog_server/core/domain"
)

type memKV struct {
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (k *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := k.data[key]
	return v, ok, nil
}

func (k *memKV) Put(ctx context.Context, key, value string) error {
	k.data[key] = value
	return nil
}

type fakeSystem struct {
	rows     []domain.SystemCallRow
	live     []int64
	modified bool
	count    int64
}

func (f *fakeSystem) QueryModifiedSince(ctx context.Context, after domain.ModifiedCursor, limit int) ([]domain.SystemCallRow, error) {
	var out []domain.SystemCallRow
	for _, r := range f.rows {
		if after.Before(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastModified != out[j].LastModified {
			return out[i].LastModified < out[j].LastModified
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSystem) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	alive := map[int64]bool{}
	for _, id := range f.live {
		alive[id] = true
	}
	var out []int64
	for _, id := range ids {
		if alive[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeSystem) Count(ctx context.Context) (int64, error) { return f.count, nil }

func (f *fakeSystem) HasModifiedSince(ctx context.Context, after domain.ModifiedCursor) (bool, error) {
	for _, r := range f.rows {
		if after.Before(r) {
			return true, nil
		}
	}
	return f.modified, nil
}

type fakeAnnotated struct {
	rows []domain.AnnotatedRow
}

func (f *fakeAnnotated) AllIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(f.rows))
	for _, r := range f.rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (f *fakeAnnotated) Count(ctx context.Context) (int64, error) { return int64(len(f.rows)), nil }

func (f *fakeAnnotated) LookupStates(ctx context.Context) ([]domain.RowLookupState, error) {
	var out []domain.RowLookupState
	for _, r := range f.rows {
		if r.NormalizedNumber != "" {
			out = append(out, domain.RowLookupState{
				ID:               r.ID,
				NormalizedNumber: r.NormalizedNumber,
				LookupInfo:       r.LookupInfo,
				LookupComplete:   r.LookupComplete,
			})
		}
	}
	return out, nil
}

func (f *fakeAnnotated) DistinctNumbers(ctx context.Context) ([]string, error) {
	set := map[string]bool{}
	for _, r := range f.rows {
		if r.NormalizedNumber != "" {
			set[r.NormalizedNumber] = true
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeAnnotated) ListRows(ctx context.Context, limit int) ([]domain.AnnotatedRow, error) {
	return f.rows, nil
}

type fakeHistory struct {
	entries map[string]domain.LookupInfo
	deleted []string
}

func (f *fakeHistory) Get(ctx context.Context, numbers []string) (map[string]domain.LookupInfo, error) {
	out := map[string]domain.LookupInfo{}
	for _, n := range numbers {
		if info, ok := f.entries[n]; ok {
			out[n] = info
		}
	}
	return out, nil
}

func (f *fakeHistory) Upsert(ctx context.Context, entries map[string]domain.LookupInfo, updatedAt int64) error {
	for n, info := range entries {
		f.entries[n] = info
	}
	return nil
}

func (f *fakeHistory) Numbers(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(f.entries))
	for n := range f.entries {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeHistory) Delete(ctx context.Context, numbers []string) error {
	for _, n := range numbers {
		delete(f.entries, n)
		f.deleted = append(f.deleted, n)
	}
	return nil
}

// fakeBulk answers every number from a fixed directory of contact names.
type fakeBulk struct {
	names     map[string]string
	dirty     bool
	since     int64
	committed int
}

func (f *fakeBulk) IsDirty(ctx context.Context, numbers []domain.DialerPhoneNumber, since int64) (bool, error) {
	f.since = since
	return f.dirty, nil
}

func (f *fakeBulk) BulkUpdate(ctx context.Context, existing map[string]domain.LookupInfo, since int64) (map[string]domain.LookupInfo, error) {
	out := make(map[string]domain.LookupInfo, len(existing))
	for n, info := range existing {
		info.Contacts = &domain.ContactsInfo{Name: f.names[n]}
		out[n] = info
	}
	return out, nil
}

func (f *fakeBulk) OnSuccessfulBulkUpdate(ctx context.Context) error {
	f.committed++
	return nil
}

type fakeVoicemails struct {
	vms  []domain.Voicemail
	byID [][]int64
}

func (f *fakeVoicemails) ByCallIDs(ctx context.Context, ids []int64) ([]domain.Voicemail, error) {
	f.byID = append(f.byID, ids)
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Voicemail
	for _, vm := range f.vms {
		if want[vm.CallID] {
			out = append(out, vm)
		}
	}
	return out, nil
}

func (f *fakeVoicemails) ModifiedSince(ctx context.Context, since int64) ([]domain.Voicemail, error) {
	var out []domain.Voicemail
	for _, vm := range f.vms {
		if vm.ModifiedAt > since {
			out = append(out, vm)
		}
	}
	return out, nil
}

func (f *fakeVoicemails) HasModifiedSince(ctx context.Context, since int64) (bool, error) {
	vms, _ := f.ModifiedSince(ctx, since)
	return len(vms) > 0, nil
}

type fakeSpam struct {
	version   int64
	spam      map[string]bool
	blocked   map[string]bool
	evaluated [][]string
}

func (f *fakeSpam) Version(ctx context.Context) (int64, error) { return f.version, nil }

func (f *fakeSpam) Evaluate(ctx context.Context, numbers []string) (map[string]domain.SpamStatus, error) {
	f.evaluated = append(f.evaluated, numbers)
	out := make(map[string]domain.SpamStatus, len(numbers))
	for _, n := range numbers {
		out[n] = domain.SpamStatus{IsSpam: f.spam[n], IsBlocked: f.blocked[n]}
	}
	return out, nil
}
