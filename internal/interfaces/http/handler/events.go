package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/interfaces/http/dto"
)

// EventReader lists event log entries
type EventReader interface {
	List(ctx context.Context, filter marketsync.EventLogFilter) ([]marketsync.EventLogEntry, int64, error)
}

// EventHandler serves the event log, newest first
type EventHandler struct {
	BaseHandler
	events EventReader
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(events EventReader) *EventHandler {
	return &EventHandler{events: events}
}

// List godoc
//
//	@ID				listSyncEvents
//	@Summary		List event log entries
//	@Tags			events
//	@Produce		json
//	@Security		BearerAuth
//	@Param			event_type			query		string	false	"Event type, e.g. item.synced"
//	@Param			status				query		string	false	"Status"	Enums(success, error, warning, info, skipped)
//	@Param			marketplace_id		query		int		false	"Marketplace id"
//	@Param			related_entity_id	query		string	false	"Local or remote entity id"
//	@Param			queue_item_id		query		string	false	"Queue item id"	format(uuid)
//	@Param			since				query		string	false	"RFC 3339 lower bound"
//	@Param			page				query		int		false	"Page"	default(1)
//	@Param			page_size			query		int		false	"Page size"	default(50)
//	@Success		200					{object}	APIResponse[[]dto.EventResponse]
//	@Failure		400					{object}	ErrorResponse
//	@Router			/events [get]
func (h *EventHandler) List(c *gin.Context) {
	var q dto.EventListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := q.Filter()
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}

	entries, total, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]dto.EventResponse, len(entries))
	for i := range entries {
		out[i] = dto.NewEventResponse(&entries[i])
	}
	h.SuccessWithMeta(c, out, total, filter.Page, filter.PageSize)
}
