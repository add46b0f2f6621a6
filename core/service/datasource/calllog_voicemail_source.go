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

// VoicemailSource attaches voicemail metadata to the call log rows that
// carry it.
type VoicemailSource struct {
	store     out.VoicemailStore
	annotated out.AnnotatedCallLogReader
	prefs     *common.Preferences
	log       zerolog.Logger

	pendingWatermark int64
	hasPending       bool
}

func NewVoicemailSource(store out.VoicemailStore, annotated out.AnnotatedCallLogReader, prefs *common.Preferences) *VoicemailSource {
	return &VoicemailSource{
		store:     store,
		annotated: annotated,
		prefs:     prefs,
		log:       logger.Component("datasource.voicemail"),
	}
}

func (s *VoicemailSource) Name() string { return "voicemail" }

func (s *VoicemailSource) IsDirty(ctx context.Context) (bool, error) {
	wm, ok, err := s.prefs.GetInt64(ctx, common.KeyVoicemailLastModified)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	modified, err := s.store.HasModifiedSince(ctx, wm)
	if err != nil {
		return false, fmt.Errorf("voicemail modified check: %w", err)
	}
	return modified, nil
}

func (s *VoicemailSource) Fill(ctx context.Context, m *domain.MutationSet) error {
	wm, _, err := s.prefs.GetInt64(ctx, common.KeyVoicemailLastModified)
	if err != nil {
		return err
	}

	vms, err := s.store.ModifiedSince(ctx, wm)
	if err != nil {
		return fmt.Errorf("voicemails modified since %d: %w", wm, err)
	}

	ids, err := s.annotated.AllIDs(ctx)
	if err != nil {
		return fmt.Errorf("annotated ids: %w", err)
	}
	committed := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		committed[id] = struct{}{}
	}

	pending := wm
	seen := make(map[int64]struct{}, len(vms))
	for _, vm := range vms {
		if vm.ModifiedAt > pending {
			pending = vm.ModifiedAt
		}
		seen[vm.CallID] = struct{}{}
	}

	// a voicemail stored before its call row reached the log is already behind
	// the watermark; rows inserted now fetch theirs by id
	var missing []int64
	for _, id := range m.Inserts() {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		late, err := s.store.ByCallIDs(ctx, missing)
		if err != nil {
			return fmt.Errorf("voicemails for inserted rows: %w", err)
		}
		vms = append(vms, late...)
	}

	applied, skipped := 0, 0
	for _, vm := range vms {
		if m.IsDeleted(vm.CallID) {
			skipped++
			continue
		}
		_, isCommitted := committed[vm.CallID]
		if !isCommitted && !m.IsInserted(vm.CallID) && !m.IsUpdated(vm.CallID) {
			// not a row of ours
			skipped++
			continue
		}
		if err := m.Update(vm.CallID, domain.Fields{
			domain.ColVoicemailURI:  vm.URI,
			domain.ColTranscription: vm.Transcription,
			domain.ColIsRead:        vm.IsRead,
		}); err != nil {
			return err
		}
		applied++
	}

	s.pendingWatermark = pending
	s.hasPending = true

	s.log.Debug().Int("applied", applied).Int("skipped", skipped).Msg("voicemail filled")
	return nil
}

func (s *VoicemailSource) OnSuccessfulFill(ctx context.Context) error {
	if !s.hasPending {
		return nil
	}
	if err := s.prefs.PutInt64(ctx, common.KeyVoicemailLastModified, s.pendingWatermark); err != nil {
		return err
	}
	s.hasPending = false
	return nil
}

// Coalesce takes the voicemail of the newest row that has one.
func (s *VoicemailSource) Coalesce(rows []domain.Fields) domain.Fields {
	for _, r := range rows {
		if r.String(domain.ColVoicemailURI) != "" {
			return pick(r, domain.ColVoicemailURI, domain.ColTranscription)
		}
	}
	return domain.Fields{
		domain.ColVoicemailURI:  "",
		domain.ColTranscription: "",
	}
}
