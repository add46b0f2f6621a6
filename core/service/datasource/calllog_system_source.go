// Package datasource holds the column contributors of the annotated call log.
// Sources run in registration order with the system call log first.
package datasource

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"calllog_server/core/domain"
	"calllog_server/core/port/out"
	"calllog_server/core/service/common"
	"calllog_server/pkg/logger"
)

const defaultBatchLimit = 1000

// systemColumns are the columns copied from the native call log.
var systemColumns = []string{
	domain.ColTimestamp,
	domain.ColNumber,
	domain.ColNormalizedNumber,
	domain.ColFormattedNumber,
	domain.ColCountryISO,
	domain.ColCallType,
	domain.ColDuration,
	domain.ColFeatures,
	domain.ColGeocodedLocation,
	domain.ColPhoneAccountComponent,
	domain.ColPhoneAccountID,
	domain.ColIsRead,
	domain.ColNew,
}

// SystemSource mirrors the native call log into the annotated log.
type SystemSource struct {
	system     out.SystemCallLog
	annotated  out.AnnotatedCallLogReader
	prefs      *common.Preferences
	batchLimit int
	userISO    string
	log        zerolog.Logger

	pending    domain.ModifiedCursor
	hasPending bool
}

func NewSystemSource(
	system out.SystemCallLog,
	annotated out.AnnotatedCallLogReader,
	prefs *common.Preferences,
	batchLimit int,
	userCountryISO string,
) *SystemSource {
	if batchLimit <= 0 {
		batchLimit = defaultBatchLimit
	}
	return &SystemSource{
		system:     system,
		annotated:  annotated,
		prefs:      prefs,
		batchLimit: batchLimit,
		userISO:    userCountryISO,
		log:        logger.Component("datasource.system"),
	}
}

func (s *SystemSource) Name() string { return "system_call_log" }

// IsDirty over-reports on purpose when counts differ: a deletion leaves no
// modified row behind.
func (s *SystemSource) IsDirty(ctx context.Context) (bool, error) {
	cursor, ok, err := s.cursor(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	modified, err := s.system.HasModifiedSince(ctx, cursor)
	if err != nil {
		return false, fmt.Errorf("system call log modified check: %w", err)
	}
	if modified {
		return true, nil
	}

	live, err := s.system.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("system call log count: %w", err)
	}
	annotated, err := s.annotated.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("annotated call log count: %w", err)
	}
	return live != annotated, nil
}

func (s *SystemSource) Fill(ctx context.Context, m *domain.MutationSet) error {
	cursor, _, err := s.cursor(ctx)
	if err != nil {
		return err
	}

	annotatedIDs, err := s.annotated.AllIDs(ctx)
	if err != nil {
		return fmt.Errorf("annotated ids: %w", err)
	}
	known := make(map[int64]struct{}, len(annotatedIDs))
	for _, id := range annotatedIDs {
		known[id] = struct{}{}
	}

	rows, err := s.system.QueryModifiedSince(ctx, cursor, s.batchLimit)
	if err != nil {
		return fmt.Errorf("query system call log: %w", err)
	}

	pending := cursor
	for _, row := range rows {
		fields := s.rowFields(row)
		if _, ok := known[row.ID]; ok {
			if err := m.Update(row.ID, fields); err != nil {
				return err
			}
		} else {
			if err := m.Insert(row.ID, fields); err != nil {
				return err
			}
		}
		pending = pending.Advance(row)
	}

	// 삭제 감지: annotated 에만 남아 있는 id
	deleted := 0
	if len(annotatedIDs) > 0 {
		live, err := s.system.ExistingIDs(ctx, annotatedIDs)
		if err != nil {
			return fmt.Errorf("existing ids: %w", err)
		}
		alive := make(map[int64]struct{}, len(live))
		for _, id := range live {
			alive[id] = struct{}{}
		}
		for _, id := range annotatedIDs {
			if _, ok := alive[id]; !ok {
				m.Delete(id)
				deleted++
			}
		}
	}

	s.pending = pending
	s.hasPending = true

	s.log.Debug().
		Int("rows", len(rows)).
		Int("deleted", deleted).
		Int64("watermark", pending.LastModified).
		Int64("watermark_id", pending.ID).
		Msg("system call log filled")
	return nil
}

func (s *SystemSource) OnSuccessfulFill(ctx context.Context) error {
	if !s.hasPending {
		return nil
	}
	// a commit interrupted between the two writes leaves a cursor between
	// the old and new positions; rows in that range were all in this batch
	if err := s.prefs.PutInt64(ctx, common.KeySystemLastID, s.pending.ID); err != nil {
		return err
	}
	if err := s.prefs.PutInt64(ctx, common.KeySystemLastTimestamp, s.pending.LastModified); err != nil {
		return err
	}
	s.hasPending = false
	return nil
}

// cursor reads the committed position. ok is false before the first commit.
func (s *SystemSource) cursor(ctx context.Context) (domain.ModifiedCursor, bool, error) {
	lastModified, ok, err := s.prefs.GetInt64(ctx, common.KeySystemLastTimestamp)
	if err != nil || !ok {
		return domain.ModifiedCursor{}, false, err
	}
	id, _, err := s.prefs.GetInt64(ctx, common.KeySystemLastID)
	if err != nil {
		return domain.ModifiedCursor{}, false, err
	}
	return domain.ModifiedCursor{LastModified: lastModified, ID: id}, true, nil
}

// Coalesce takes the newest row for scalars; features are OR-ed, a group is
// read only when every call is read and new when any call is new.
func (s *SystemSource) Coalesce(rows []domain.Fields) domain.Fields {
	if len(rows) == 0 {
		return domain.Fields{}
	}
	out := pick(rows[0], systemColumns...)

	var features int64
	allRead, anyNew := true, false
	for _, r := range rows {
		features |= r.Int64(domain.ColFeatures)
		allRead = allRead && r.Bool(domain.ColIsRead)
		anyNew = anyNew || r.Bool(domain.ColNew)
	}
	out[domain.ColFeatures] = features
	out[domain.ColIsRead] = allRead
	out[domain.ColNew] = anyNew
	return out
}

func (s *SystemSource) rowFields(row domain.SystemCallRow) domain.Fields {
	iso := row.CountryISO
	if iso == "" {
		iso = s.userISO
	}
	number := domain.NewDialerPhoneNumber(row.Number, iso)

	formatted := row.CachedFormattedNumber
	if number.Valid || formatted == "" {
		formatted = number.Formatted(s.userISO)
	}

	return domain.Fields{
		domain.ColTimestamp:             row.Timestamp,
		domain.ColNumber:                row.Number,
		domain.ColNormalizedNumber:      number.Normalized,
		domain.ColFormattedNumber:       formatted,
		domain.ColCountryISO:            row.CountryISO,
		domain.ColCallType:              int64(row.CallType),
		domain.ColDuration:              row.Duration,
		domain.ColFeatures:              row.Features,
		domain.ColGeocodedLocation:      row.GeocodedLocation,
		domain.ColPhoneAccountComponent: row.PhoneAccountComponent,
		domain.ColPhoneAccountID:        row.PhoneAccountID,
		domain.ColIsRead:                row.IsRead,
		domain.ColNew:                   row.New,
	}
}

// pick copies the listed columns that are set in f.
func pick(f domain.Fields, cols ...string) domain.Fields {
	out := make(domain.Fields, len(cols))
	for _, c := range cols {
		if v, ok := f[c]; ok {
			out[c] = v
		}
	}
	return out
}

// touchedNumbers collects the normalized numbers carried by pending inserts
// and updates, keyed by id.
func touchedNumbers(m *domain.MutationSet) map[int64]string {
	out := make(map[int64]string)
	for _, id := range m.Inserts() {
		f, _ := m.InsertFields(id)
		if f.Has(domain.ColNormalizedNumber) {
			out[id] = f.String(domain.ColNormalizedNumber)
		}
	}
	for _, id := range m.Updates() {
		f, _ := m.UpdateFields(id)
		if f.Has(domain.ColNormalizedNumber) {
			out[id] = f.String(domain.ColNormalizedNumber)
		}
	}
	return out
}
