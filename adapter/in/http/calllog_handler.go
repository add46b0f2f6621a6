package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"calllog_server/core/domain"
	"calllog_server/core/port/in"
	"calllog_server/core/port/out"
	"calllog_server/pkg/apperr"
	"calllog_server/pkg/logger"
	"calllog_server/pkg/response"
)

// CallLogHandler exposes refresh and read operations of the annotated call log.
type CallLogHandler struct {
	refresh  in.RefreshService
	query    in.CallLogQueryService
	enricher in.EnrichmentService
	events   out.EventPublisher
	log      zerolog.Logger

	// asyncTimeout bounds background refreshes started without wait=true.
	asyncTimeout time.Duration
}

func NewCallLogHandler(refresh in.RefreshService, query in.CallLogQueryService, enricher in.EnrichmentService) *CallLogHandler {
	return &CallLogHandler{
		refresh:      refresh,
		query:        query,
		enricher:     enricher,
		log:          logger.Component("calllog_http"),
		asyncTimeout: 5 * time.Minute,
	}
}

// WithPublisher hands background work to the worker through the event
// stream instead of running it in this process.
func (h *CallLogHandler) WithPublisher(events out.EventPublisher) *CallLogHandler {
	h.events = events
	return h
}

// Register registers call log routes.
func (h *CallLogHandler) Register(router fiber.Router) {
	calllog := router.Group("/calllog")

	calllog.Get("/", h.List)
	calllog.Get("/dirty", h.Dirty)
	calllog.Post("/refresh", h.Refresh)
	calllog.Post("/rebuild", h.Rebuild)
	calllog.Post("/cache/clear", h.ClearCache)
}

// List returns the coalesced call log, newest first.
func (h *CallLogHandler) List(c *fiber.Ctx) error {
	req := &in.ListCallLogRequest{
		Limit:  c.QueryInt("limit", 0),
		Enrich: c.QueryBool("enrich", false),
	}
	if req.Limit < 0 {
		return apperr.InvalidInput("limit", "must not be negative")
	}

	resp, err := h.query.List(c.UserContext(), req)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, resp.Rows, &response.Meta{
		Total:    resp.Total,
		Returned: len(resp.Rows),
		HasMore:  len(resp.Rows) < resp.Total,
	})
}

// Dirty reports whether a refresh would change anything.
func (h *CallLogHandler) Dirty(c *fiber.Ctx) error {
	dirty, err := h.refresh.IsDirty(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"dirty": dirty})
}

// Refresh runs a refresh. With wait=true the request blocks until it
// finishes; otherwise it is queued and 202 is returned.
func (h *CallLogHandler) Refresh(c *fiber.Ctx) error {
	force := c.QueryBool("force", false)

	if c.QueryBool("wait", false) {
		if err := h.refresh.Refresh(c.UserContext(), force); err != nil {
			return err
		}
		return response.OK(c, fiber.Map{"status": "completed", "force": force})
	}

	if h.events != nil {
		event := &domain.CallLogEvent{Type: domain.EventRefresh, Force: force, Source: "http"}
		if err := h.events.Publish(c.UserContext(), event); err != nil {
			return err
		}
		return response.Accepted(c, fiber.Map{"status": "published", "event_id": event.ID, "force": force})
	}

	h.startAsync(force)
	return response.Accepted(c, fiber.Map{"status": "queued", "force": force})
}

// Rebuild sets the force-rebuild flag and queues a refresh.
func (h *CallLogHandler) Rebuild(c *fiber.Ctx) error {
	if h.events != nil {
		event := &domain.CallLogEvent{Type: domain.EventForceRebuild, Force: true, Source: "http"}
		if err := h.events.Publish(c.UserContext(), event); err != nil {
			return err
		}
		return response.Accepted(c, fiber.Map{"status": "published", "event_id": event.ID, "force": true})
	}

	if err := h.refresh.MarkForceRebuild(c.UserContext()); err != nil {
		return err
	}
	h.startAsync(true)
	return response.Accepted(c, fiber.Map{"status": "queued", "force": true})
}

// ClearCache drops every realtime lookup result.
func (h *CallLogHandler) ClearCache(c *fiber.Ctx) error {
	if err := h.enricher.ClearCache(c.UserContext()); err != nil {
		return err
	}
	// the worker holds its own cache
	if h.events != nil {
		event := &domain.CallLogEvent{Type: domain.EventInvalidateCache, Source: "http"}
		if err := h.events.Publish(c.UserContext(), event); err != nil {
			return err
		}
	}
	return response.OK(c, fiber.Map{"status": "cleared"})
}

// fiber recycles the request context, so background work gets its own.
func (h *CallLogHandler) startAsync(force bool) {
	ctx, cancel := context.WithTimeout(context.Background(), h.asyncTimeout)
	done := h.refresh.RefreshAsync(ctx, force)
	go func() {
		defer cancel()
		if err := <-done; err != nil {
			h.log.Error().Err(err).Bool("force", force).Msg("background refresh failed")
		}
	}()
}
