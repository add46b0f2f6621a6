package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"calllog_server/adapter/out/persistence"
	"calllog_server/core/domain"
	"calllog_server/pkg/apperr"
	"calllog_server/pkg/response"
)

// =============================================================================
// Ingestion: writes to the stores the refresh engine reads from
// =============================================================================

type CallLogWriter interface {
	Upsert(ctx context.Context, r domain.SystemCallRow) error
	Delete(ctx context.Context, ids []int64) error
}

type ContactWriter interface {
	SaveContact(ctx context.Context, c persistence.ContactRecord) error
	DeleteContact(ctx context.Context, id, deletedAt int64) error
}

type SpamWriter interface {
	MarkSpam(ctx context.Context, spam bool, numbers ...string) error
	Block(ctx context.Context, blocked bool, numbers ...string) error
}

type VoicemailWriter interface {
	Save(ctx context.Context, vm domain.Voicemail) error
}

// IngestHandler accepts native call log, contact and signal updates. Spam and
// voicemail routes answer 404 when their store is not configured.
type IngestHandler struct {
	calls      CallLogWriter
	contacts   ContactWriter
	spam       SpamWriter
	voicemails VoicemailWriter
	countryISO string
	now        func() time.Time
}

func NewIngestHandler(calls CallLogWriter, contacts ContactWriter, countryISO string) *IngestHandler {
	return &IngestHandler{
		calls:      calls,
		contacts:   contacts,
		countryISO: countryISO,
		now:        time.Now,
	}
}

func (h *IngestHandler) WithSpam(spam SpamWriter) *IngestHandler {
	h.spam = spam
	return h
}

func (h *IngestHandler) WithVoicemails(voicemails VoicemailWriter) *IngestHandler {
	h.voicemails = voicemails
	return h
}

// Register registers ingestion routes.
func (h *IngestHandler) Register(router fiber.Router) {
	ingest := router.Group("/ingest")

	ingest.Post("/calls", h.UpsertCalls)
	ingest.Delete("/calls", h.DeleteCalls)
	ingest.Put("/contacts/:id", h.SaveContact)
	ingest.Delete("/contacts/:id", h.DeleteContact)
	ingest.Post("/spam", h.MarkSpam)
	ingest.Post("/blocklist", h.Block)
	ingest.Put("/voicemails/:call_id", h.SaveVoicemail)
}

type callRequest struct {
	ID                    int64  `json:"id"`
	Timestamp             int64  `json:"timestamp"`
	Number                string `json:"number"`
	CallType              int    `json:"call_type"`
	CountryISO            string `json:"country_iso"`
	Duration              int64  `json:"duration"`
	Features              int64  `json:"features"`
	GeocodedLocation      string `json:"geocoded_location"`
	PhoneAccountComponent string `json:"phone_account_component"`
	PhoneAccountID        string `json:"phone_account_id"`
	IsRead                bool   `json:"is_read"`
	New                   bool   `json:"new"`
	CachedName            string `json:"cached_name"`
	CachedFormattedNumber string `json:"cached_formatted_number"`
}

// UpsertCalls records native call log rows. last_modified is stamped on
// arrival so the next refresh picks the rows up.
func (h *IngestHandler) UpsertCalls(c *fiber.Ctx) error {
	var req []callRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid call list")
	}

	modified := h.now().UnixMilli()
	for _, r := range req {
		if r.ID <= 0 {
			return apperr.InvalidInput("id", "must be positive")
		}
		if r.Timestamp <= 0 {
			r.Timestamp = modified
		}
		if r.CountryISO == "" {
			r.CountryISO = h.countryISO
		}
		row := domain.SystemCallRow{
			ID: r.ID, Timestamp: r.Timestamp, LastModified: modified,
			Number: r.Number, CallType: r.CallType, CountryISO: r.CountryISO,
			Duration: r.Duration, Features: r.Features, GeocodedLocation: r.GeocodedLocation,
			PhoneAccountComponent: r.PhoneAccountComponent, PhoneAccountID: r.PhoneAccountID,
			IsRead: r.IsRead, New: r.New,
			CachedName: r.CachedName, CachedFormattedNumber: r.CachedFormattedNumber,
		}
		if err := h.calls.Upsert(c.UserContext(), row); err != nil {
			return err
		}
	}
	return response.OK(c, fiber.Map{"upserted": len(req)})
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *IngestHandler) DeleteCalls(c *fiber.Ctx) error {
	var req idsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid id list")
	}
	if err := h.calls.Delete(c.UserContext(), req.IDs); err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"deleted": len(req.IDs)})
}

type contactRequest struct {
	DisplayName string `json:"display_name"`
	PhotoURI    string `json:"photo_uri"`
	PhotoID     int64  `json:"photo_id"`
	LookupKey   string `json:"lookup_key"`
	// Phones maps a raw number to its type label.
	Phones map[string]string `json:"phones"`
}

// SaveContact replaces a contact. Phone numbers are normalized with the
// default country.
func (h *IngestHandler) SaveContact(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return apperr.InvalidInput("id", "must be a positive integer")
	}

	var req contactRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid contact")
	}

	phones := make(map[string]string, len(req.Phones))
	for raw, label := range req.Phones {
		if key := h.normalize(raw); key != "" {
			phones[key] = label
		}
	}

	record := persistence.ContactRecord{
		ID:          int64(id),
		DisplayName: req.DisplayName,
		PhotoURI:    req.PhotoURI,
		PhotoID:     req.PhotoID,
		LookupKey:   req.LookupKey,
		UpdatedAt:   h.now().UnixMilli(),
		Phones:      phones,
	}
	if err := h.contacts.SaveContact(c.UserContext(), record); err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"id": id, "phones": len(phones)})
}

func (h *IngestHandler) DeleteContact(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return apperr.InvalidInput("id", "must be a positive integer")
	}
	if err := h.contacts.DeleteContact(c.UserContext(), int64(id), h.now().UnixMilli()); err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"id": id})
}

type signalRequest struct {
	Numbers []string `json:"numbers"`
	// Value false removes the numbers from the list.
	Value bool `json:"value"`
}

func (h *IngestHandler) MarkSpam(c *fiber.Ctx) error {
	if h.spam == nil {
		return apperr.NotFound("spam list")
	}
	req, numbers, err := h.parseSignal(c)
	if err != nil {
		return err
	}
	if err := h.spam.MarkSpam(c.UserContext(), req.Value, numbers...); err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"numbers": numbers, "spam": req.Value})
}

func (h *IngestHandler) Block(c *fiber.Ctx) error {
	if h.spam == nil {
		return apperr.NotFound("blocklist")
	}
	req, numbers, err := h.parseSignal(c)
	if err != nil {
		return err
	}
	if err := h.spam.Block(c.UserContext(), req.Value, numbers...); err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"numbers": numbers, "blocked": req.Value})
}

type voicemailRequest struct {
	URI           string `json:"uri"`
	Transcription string `json:"transcription"`
	IsRead        bool   `json:"is_read"`
}

func (h *IngestHandler) SaveVoicemail(c *fiber.Ctx) error {
	if h.voicemails == nil {
		return apperr.NotFound("voicemail store")
	}
	callID, err := c.ParamsInt("call_id")
	if err != nil || callID <= 0 {
		return apperr.InvalidInput("call_id", "must be a positive integer")
	}

	var req voicemailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid voicemail")
	}

	vm := domain.Voicemail{
		CallID:        int64(callID),
		URI:           req.URI,
		Transcription: req.Transcription,
		IsRead:        req.IsRead,
		ModifiedAt:    h.now().UnixMilli(),
	}
	if err := h.voicemails.Save(c.UserContext(), vm); err != nil {
		return err
	}
	return response.OK(c, vm)
}

func (h *IngestHandler) parseSignal(c *fiber.Ctx) (signalRequest, []string, error) {
	var req signalRequest
	if err := c.BodyParser(&req); err != nil {
		return req, nil, apperr.BadRequest("invalid number list")
	}

	numbers := make([]string, 0, len(req.Numbers))
	for _, raw := range req.Numbers {
		if key := h.normalize(raw); key != "" {
			numbers = append(numbers, key)
		}
	}
	if len(numbers) == 0 {
		return req, nil, apperr.InvalidInput("numbers", "no usable phone number")
	}
	return req, numbers, nil
}

func (h *IngestHandler) normalize(raw string) string {
	n := domain.NewDialerPhoneNumber(raw, h.countryISO)
	if n.IsEmpty() {
		return ""
	}
	return n.Key()
}
