package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/interfaces/http/dto"
)

// QueueAdmin is the queue surface of the admin API
type QueueAdmin interface {
	Enqueue(ctx context.Context, req appsync.EnqueueRequest) (*appsync.EnqueueResult, error)
	Requeue(ctx context.Context, id uuid.UUID) (*marketsync.SyncQueueItem, error)
	Get(ctx context.Context, id uuid.UUID) (*marketsync.SyncQueueItem, error)
	List(ctx context.Context, filter marketsync.QueueListFilter) ([]marketsync.SyncQueueItem, int64, error)
	Stats(ctx context.Context) ([]marketsync.QueueStat, error)
}

// QueueHandler serves the sync queue admin endpoints
type QueueHandler struct {
	BaseHandler
	queue QueueAdmin
}

// NewQueueHandler creates a new QueueHandler
func NewQueueHandler(queue QueueAdmin) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// Enqueue godoc
//
//	@ID				enqueueSyncItem
//	@Summary		Enqueue sync work
//	@Description	Adds an item, or refreshes the snapshot of the outstanding item with the same key
//	@Tags			queue
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		appsync.EnqueueRequest	true	"Item to enqueue"
//	@Success		201		{object}	APIResponse[appsync.EnqueueResult]	"New item"
//	@Success		200		{object}	APIResponse[appsync.EnqueueResult]	"Existing item refreshed"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Router			/queue [post]
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req appsync.EnqueueRequest
	if !h.BindJSON(c, &req) {
		return
	}
	result, err := h.queue.Enqueue(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Created {
		h.Created(c, result)
		return
	}
	h.Success(c, result)
}

// List godoc
//
//	@ID				listSyncQueue
//	@Summary		List queue items
//	@Tags			queue
//	@Produce		json
//	@Security		BearerAuth
//	@Param			status			query		string	false	"Status"	Enums(pending, processing, completed, error)
//	@Param			entity_type		query		string	false	"Entity type"	Enums(product, stock, price, order, category)
//	@Param			tier			query		string	false	"Tier"	Enums(high, medium, low)
//	@Param			marketplace_id	query		int		false	"Marketplace id"
//	@Param			local_entity_id	query		string	false	"Local entity id"
//	@Param			page			query		int		false	"Page"	default(1)
//	@Param			page_size		query		int		false	"Page size"	default(50)
//	@Success		200				{object}	APIResponse[[]dto.QueueItemResponse]
//	@Failure		400				{object}	ErrorResponse
//	@Router			/queue [get]
func (h *QueueHandler) List(c *gin.Context) {
	var q dto.QueueListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := q.Filter()
	items, total, err := h.queue.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]dto.QueueItemResponse, len(items))
	for i := range items {
		out[i] = dto.NewQueueItemResponse(&items[i])
	}
	h.SuccessWithMeta(c, out, total, filter.Page, filter.PageSize)
}

// Get godoc
//
//	@ID				getSyncQueueItem
//	@Summary		Get a queue item
//	@Tags			queue
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Queue item id"	format(uuid)
//	@Success		200	{object}	APIResponse[dto.QueueItemResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Router			/queue/{id} [get]
func (h *QueueHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	item, err := h.queue.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewQueueItemResponse(item))
}

// Stats godoc
//
//	@ID				getSyncQueueStats
//	@Summary		Queue counts
//	@Description	Item counts by tier, marketplace and status
//	@Tags			queue
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	APIResponse[[]marketsync.QueueStat]
//	@Router			/queue/stats [get]
func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if stats == nil {
		stats = []marketsync.QueueStat{}
	}
	h.Success(c, stats)
}

// Requeue godoc
//
//	@ID				requeueSyncItem
//	@Summary		Requeue a failed item
//	@Description	Moves an item in error back to pending with a fresh retry budget
//	@Tags			queue
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Queue item id"	format(uuid)
//	@Success		200	{object}	APIResponse[dto.QueueItemResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse	"Item is not in error"
//	@Router			/queue/{id}/requeue [post]
func (h *QueueHandler) Requeue(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	item, err := h.queue.Requeue(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewQueueItemResponse(item))
}

func (h *QueueHandler) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, dto.ErrCodeValidation, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
