package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/tracks/pkg/engine"
	"github.com/papercomputeco/tracks/pkg/extract"
	"github.com/papercomputeco/tracks/pkg/query"
	"github.com/papercomputeco/tracks/pkg/rules"
	"github.com/papercomputeco/tracks/pkg/storage"
	"github.com/papercomputeco/tracks/pkg/tags"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ExtractedEvent is an event with its materialized tags.
type ExtractedEvent struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	DurationMS int64      `json:"duration_ms"`
	Tags       *tags.Tags `json:"tags"`
}

// ExtractedResponse answers GET /v1/extracted.
type ExtractedResponse struct {
	From   time.Time        `json:"from"`
	To     time.Time        `json:"to"`
	Events []ExtractedEvent `json:"events"`
}

// TagsResponse carries derived tags and, when requested, their reasons.
type TagsResponse struct {
	ID      string         `json:"id,omitempty"`
	Tags    *tags.Tags     `json:"tags"`
	Reasons engine.Reasons `json:"reasons,omitempty"`
}

// DeriveRequest is the body of POST /v1/derive.
type DeriveRequest struct {
	Tags *tags.Tags `json:"tags"`
}

func toExtracted(e *extract.ExtractedEvent) ExtractedEvent {
	return ExtractedEvent{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		DurationMS: e.Duration.Milliseconds(),
		Tags:       e.Tags,
	}
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Error: msg})
}

// failFrom maps a query layer error to a response.
func (s *Server) failFrom(c *fiber.Ctx, err error, msg string) error {
	var nf storage.NotFoundError
	switch {
	case errors.As(err, &nf):
		return fail(c, fiber.StatusNotFound, nf.Error())
	case errors.Is(err, query.ErrDefaultGroup):
		return fail(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, query.ErrInvalidGroup):
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	s.logger.Error(msg, "path", c.Path(), "error", err)
	return fail(c, fiber.StatusInternalServerError, msg)
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListExtracted handles GET /v1/extracted?from=&to=&tag=.
func (s *Server) handleListExtracted(c *fiber.Ctx) error {
	fromArg, toArg := c.Query("from"), c.Query("to")
	if fromArg == "" || toArg == "" {
		return fail(c, fiber.StatusBadRequest, "from and to are required")
	}

	from, err := extract.ParseInstant(fromArg, false)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid from: "+fromArg)
	}
	to, err := extract.ParseInstant(toArg, true)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid to: "+toArg)
	}
	if to.Before(from) {
		return fail(c, fiber.StatusBadRequest, "to is before from")
	}
	if to.Sub(from) > time.Duration(s.config.MaxRangeDays)*24*time.Hour {
		return fail(c, fiber.StatusBadRequest, fmt.Sprintf("range exceeds %d days", s.config.MaxRangeDays))
	}

	var filter extract.Filter
	for _, raw := range c.Context().QueryArgs().PeekMulti("tag") {
		for _, t := range strings.Split(string(raw), ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Tags = append(filter.Tags, t)
			}
		}
	}

	evs, err := s.service.GetExtractedForTimeRange(c.Context(), from, to, filter)
	if err != nil {
		return s.failFrom(c, err, "failed to load extracted events")
	}

	resp := ExtractedResponse{From: from, To: to, Events: make([]ExtractedEvent, len(evs))}
	for i, e := range evs {
		resp.Events[i] = toExtracted(e)
	}
	return c.JSON(resp)
}

// handleEventTags handles GET /v1/events/:id/tags. Tags are derived with the
// current rules.
func (s *Server) handleEventTags(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return fail(c, fiber.StatusBadRequest, "id parameter is required")
	}

	if c.QueryBool("reasons") {
		t, reasons, err := s.service.GetTagsWithReasons(c.Context(), id)
		if err != nil {
			return s.failFrom(c, err, "failed to derive tags")
		}
		return c.JSON(TagsResponse{ID: id, Tags: t, Reasons: reasons})
	}

	t, err := s.service.GetTags(c.Context(), id)
	if err != nil {
		return s.failFrom(c, err, "failed to derive tags")
	}
	return c.JSON(TagsResponse{ID: id, Tags: t})
}

// handleEventExtracted handles GET /v1/events/:id/extracted.
func (s *Server) handleEventExtracted(c *fiber.Ctx) error {
	e, err := s.service.GetExtractedForSingleEvent(c.Context(), c.Params("id"))
	if err != nil {
		return s.failFrom(c, err, "failed to load extracted event")
	}
	return c.JSON(toExtracted(e))
}

// handleListRuleGroups handles GET /v1/rule-groups.
func (s *Server) handleListRuleGroups(c *fiber.Ctx) error {
	groups, err := s.service.ListRuleGroups(c.Context())
	if err != nil {
		return s.failFrom(c, err, "failed to list rule groups")
	}
	return c.JSON(groups)
}

// handleUpsertRuleGroup handles PUT /v1/rule-groups/:id. The body is the
// versioned group data.
func (s *Server) handleUpsertRuleGroup(c *fiber.Ctx) error {
	var data rules.VersionedData
	if err := c.BodyParser(&data); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	g := rules.TagRuleGroup{GlobalID: c.Params("id"), Data: data}
	if err := s.service.UpsertRuleGroup(c.Context(), g); err != nil {
		return s.failFrom(c, err, "failed to store rule group")
	}
	return c.JSON(g)
}

// handleDerive handles POST /v1/derive.
func (s *Server) handleDerive(c *fiber.Ctx) error {
	var req DeriveRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	t, reasons, err := s.service.DeriveTags(c.Context(), req.Tags)
	if err != nil {
		return s.failFrom(c, err, "failed to derive tags")
	}
	return c.JSON(TagsResponse{Tags: t, Reasons: reasons})
}
