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

// SpamSource flags rows whose number is on the spam list or the blocklist.
type SpamSource struct {
	signals   out.SpamSignals
	annotated out.AnnotatedCallLogReader
	prefs     *common.Preferences
	log       zerolog.Logger

	pendingVersion int64
	hasPending     bool
}

func NewSpamSource(signals out.SpamSignals, annotated out.AnnotatedCallLogReader, prefs *common.Preferences) *SpamSource {
	return &SpamSource{
		signals:   signals,
		annotated: annotated,
		prefs:     prefs,
		log:       logger.Component("datasource.spam"),
	}
}

func (s *SpamSource) Name() string { return "spam" }

func (s *SpamSource) IsDirty(ctx context.Context) (bool, error) {
	stored, ok, err := s.prefs.GetInt64(ctx, common.KeySpamLastVersion)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	current, err := s.signals.Version(ctx)
	if err != nil {
		return false, fmt.Errorf("spam version: %w", err)
	}
	return current != stored, nil
}

func (s *SpamSource) Fill(ctx context.Context, m *domain.MutationSet) error {
	stored, ok, err := s.prefs.GetInt64(ctx, common.KeySpamLastVersion)
	if err != nil {
		return err
	}
	current, err := s.signals.Version(ctx)
	if err != nil {
		return fmt.Errorf("spam version: %w", err)
	}
	moved := !ok || current != stored

	touched := touchedNumbers(m)
	numbers := make(map[string]struct{}, len(touched))
	for _, n := range touched {
		if n != "" {
			numbers[n] = struct{}{}
		}
	}

	var committed []domain.AnnotatedRow
	if moved {
		committed, err = s.annotated.ListRows(ctx, 0)
		if err != nil {
			return fmt.Errorf("annotated rows: %w", err)
		}
		for _, r := range committed {
			if r.NormalizedNumber != "" {
				numbers[r.NormalizedNumber] = struct{}{}
			}
		}
	}

	statuses := map[string]domain.SpamStatus{}
	if len(numbers) > 0 {
		statuses, err = s.signals.Evaluate(ctx, sortedSet(numbers))
		if err != nil {
			return fmt.Errorf("evaluate spam: %w", err)
		}
	}

	changed := 0
	for _, r := range committed {
		if m.IsDeleted(r.ID) {
			continue
		}
		if _, renumbered := touched[r.ID]; renumbered {
			continue
		}
		st := statuses[r.NormalizedNumber]
		if st.IsSpam == r.IsSpam && st.IsBlocked == r.IsBlocked {
			continue
		}
		if err := m.Update(r.ID, spamFields(st)); err != nil {
			return err
		}
		changed++
	}
	for id, n := range touched {
		if m.IsDeleted(id) {
			continue
		}
		if err := m.Update(id, spamFields(statuses[n])); err != nil {
			return err
		}
	}

	s.pendingVersion = current
	s.hasPending = true

	s.log.Debug().
		Bool("version_moved", moved).
		Int("changed", changed).
		Int("touched", len(touched)).
		Msg("spam filled")
	return nil
}

func (s *SpamSource) OnSuccessfulFill(ctx context.Context) error {
	if !s.hasPending {
		return nil
	}
	if err := s.prefs.PutInt64(ctx, common.KeySpamLastVersion, s.pendingVersion); err != nil {
		return err
	}
	s.hasPending = false
	return nil
}

func (s *SpamSource) Coalesce(rows []domain.Fields) domain.Fields {
	if len(rows) == 0 {
		return domain.Fields{}
	}
	return pick(rows[0], domain.ColIsSpam, domain.ColIsBlocked)
}

func spamFields(st domain.SpamStatus) domain.Fields {
	return domain.Fields{
		domain.ColIsSpam:    st.IsSpam,
		domain.ColIsBlocked: st.IsBlocked,
	}
}
