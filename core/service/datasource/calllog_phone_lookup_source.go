package datasource

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"calllog_server/core/domain"
	"calllog_server/core/port/out"
	"calllog_server/core/service/common"
	"calllog_server/core/service/lookup"
	"calllog_server/pkg/logger"
)

// lookupColumns are the columns owned by the phone lookup source.
var lookupColumns = []string{
	domain.ColPrimaryText,
	domain.ColPhotoURI,
	domain.ColPhotoID,
	domain.ColLookupURI,
	domain.ColNumberTypeLabel,
	domain.ColIsBusiness,
	domain.ColIsVoicemailNumber,
	domain.ColCanReportAsInvalid,
	domain.ColLookupInfo,
	domain.ColLookupComplete,
}

// BulkLookup is the bulk side of the composite lookup.
type BulkLookup interface {
	IsDirty(ctx context.Context, numbers []domain.DialerPhoneNumber, since int64) (bool, error)
	BulkUpdate(ctx context.Context, existing map[string]domain.LookupInfo, since int64) (map[string]domain.LookupInfo, error)
	OnSuccessfulBulkUpdate(ctx context.Context) error
}

// PhoneLookupSource keeps the display identity columns in sync with every
// lookup provider through the phone lookup history.
type PhoneLookupSource struct {
	composite BulkLookup
	history   out.PhoneLookupHistory
	annotated out.AnnotatedCallLogReader
	prefs     *common.Preferences
	userISO   string
	now       func() time.Time
	log       zerolog.Logger

	pending *lookupCommit
}

type lookupCommit struct {
	changed   map[string]domain.LookupInfo
	stale     []string
	fillStart int64
}

func NewPhoneLookupSource(
	composite BulkLookup,
	history out.PhoneLookupHistory,
	annotated out.AnnotatedCallLogReader,
	prefs *common.Preferences,
	userCountryISO string,
) *PhoneLookupSource {
	return &PhoneLookupSource{
		composite: composite,
		history:   history,
		annotated: annotated,
		prefs:     prefs,
		userISO:   userCountryISO,
		now:       time.Now,
		log:       logger.Component("datasource.phone_lookup"),
	}
}

func (s *PhoneLookupSource) Name() string { return "phone_lookup" }

func (s *PhoneLookupSource) IsDirty(ctx context.Context) (bool, error) {
	wm, ok, err := s.prefs.GetInt64(ctx, common.KeyPhoneLookupLastUpdated)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	numbers, err := s.annotated.DistinctNumbers(ctx)
	if err != nil {
		return false, fmt.Errorf("distinct numbers: %w", err)
	}
	return s.composite.IsDirty(ctx, s.dialerNumbers(numbers), wm)
}

func (s *PhoneLookupSource) Fill(ctx context.Context, m *domain.MutationSet) error {
	fillStart := s.now().UnixMilli()

	wm, _, err := s.prefs.GetInt64(ctx, common.KeyPhoneLookupLastUpdated)
	if err != nil {
		return err
	}

	states, err := s.annotated.LookupStates(ctx)
	if err != nil {
		return fmt.Errorf("lookup states: %w", err)
	}
	touched := touchedNumbers(m)

	referenced := make(map[string]struct{}, len(states)+len(touched))
	for _, st := range states {
		referenced[st.NormalizedNumber] = struct{}{}
	}
	for _, n := range touched {
		if n != "" {
			referenced[n] = struct{}{}
		}
	}
	numbers := sortedSet(referenced)

	stored, err := s.history.Get(ctx, numbers)
	if err != nil {
		return fmt.Errorf("read lookup history: %w", err)
	}
	existing := make(map[string]domain.LookupInfo, len(numbers))
	for _, n := range numbers {
		existing[n] = stored[n]
	}

	updated, err := s.composite.BulkUpdate(ctx, existing, wm)
	if err != nil {
		return err
	}

	changed := make(map[string]domain.LookupInfo)
	for n, info := range updated {
		prev, known := stored[n]
		if !known || !prev.Equal(info) {
			changed[n] = info
		}
	}

	// committed rows are compared against their own columns, not history:
	// realtime write-back can move history ahead of the rows
	rewritten := 0
	for _, st := range states {
		if m.IsDeleted(st.ID) {
			continue
		}
		if _, ok := touched[st.ID]; ok {
			continue
		}
		info := updated[st.NormalizedNumber]
		if st.Matches(info) {
			continue
		}
		if err := m.Update(st.ID, lookup.DisplayFields(info)); err != nil {
			return err
		}
		rewritten++
	}
	// new and renumbered rows always get display fields
	for id, n := range touched {
		if m.IsDeleted(id) {
			continue
		}
		if err := m.Update(id, lookup.DisplayFields(updated[n])); err != nil {
			return err
		}
	}

	historyNumbers, err := s.history.Numbers(ctx)
	if err != nil {
		return fmt.Errorf("history numbers: %w", err)
	}
	var stale []string
	for _, n := range historyNumbers {
		if _, ok := referenced[n]; !ok {
			stale = append(stale, n)
		}
	}

	s.pending = &lookupCommit{changed: changed, stale: stale, fillStart: fillStart}

	s.log.Debug().
		Int("numbers", len(numbers)).
		Int("changed", len(changed)).
		Int("rewritten", rewritten).
		Int("stale", len(stale)).
		Msg("phone lookup filled")
	return nil
}

func (s *PhoneLookupSource) OnSuccessfulFill(ctx context.Context) error {
	p := s.pending
	if p == nil {
		return nil
	}
	if len(p.changed) > 0 {
		if err := s.history.Upsert(ctx, p.changed, p.fillStart); err != nil {
			return fmt.Errorf("write lookup history: %w", err)
		}
	}
	if len(p.stale) > 0 {
		if err := s.history.Delete(ctx, p.stale); err != nil {
			return fmt.Errorf("prune lookup history: %w", err)
		}
	}
	if err := s.composite.OnSuccessfulBulkUpdate(ctx); err != nil {
		return err
	}
	if err := s.prefs.PutInt64(ctx, common.KeyPhoneLookupLastUpdated, p.fillStart); err != nil {
		return err
	}
	s.pending = nil
	return nil
}

// Coalesce keeps the identity of the newest row; all rows of a group share
// one number.
func (s *PhoneLookupSource) Coalesce(rows []domain.Fields) domain.Fields {
	if len(rows) == 0 {
		return domain.Fields{}
	}
	return pick(rows[0], lookupColumns...)
}

func (s *PhoneLookupSource) dialerNumbers(normalized []string) []domain.DialerPhoneNumber {
	out := make([]domain.DialerPhoneNumber, 0, len(normalized))
	for _, n := range normalized {
		out = append(out, domain.NewDialerPhoneNumber(n, s.userISO))
	}
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
