package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/interfaces/http/dto"
)

// MappingReader lists entity mappings
type MappingReader interface {
	List(ctx context.Context, filter marketsync.MappingFilter) ([]marketsync.EntityMapping, int64, error)
}

// StatusMappingAdmin reads and writes order status translations
type StatusMappingAdmin interface {
	List(ctx context.Context, marketplaceID int64) ([]marketsync.StatusMapping, error)
	SavePair(ctx context.Context, marketplaceID int64, local, remote string) error
}

// MappingHandler serves entity and status mappings
type MappingHandler struct {
	BaseHandler
	mappings MappingReader
	statuses StatusMappingAdmin
}

// NewMappingHandler creates a new MappingHandler
func NewMappingHandler(mappings MappingReader, statuses StatusMappingAdmin) *MappingHandler {
	return &MappingHandler{mappings: mappings, statuses: statuses}
}

// ListMappings godoc
//
//	@ID				listEntityMappings
//	@Summary		List entity mappings
//	@Tags			mappings
//	@Produce		json
//	@Security		BearerAuth
//	@Param			entity_type		query		string	false	"Entity type"	Enums(product, stock, price, order, category)
//	@Param			marketplace_id	query		int		false	"Marketplace id"
//	@Param			sync_status		query		string	false	"Sync status"	Enums(unsynced, pending, synced, error)
//	@Param			local_entity_id	query		string	false	"Local entity id"
//	@Param			page			query		int		false	"Page"	default(1)
//	@Param			page_size		query		int		false	"Page size"	default(50)
//	@Success		200				{object}	APIResponse[[]dto.MappingResponse]
//	@Failure		400				{object}	ErrorResponse
//	@Router			/mappings [get]
func (h *MappingHandler) ListMappings(c *gin.Context) {
	var q dto.MappingListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := q.Filter()
	rows, total, err := h.mappings.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]dto.MappingResponse, len(rows))
	for i := range rows {
		out[i] = dto.NewMappingResponse(&rows[i])
	}
	h.SuccessWithMeta(c, out, total, filter.Page, filter.PageSize)
}

// ListStatusMappings godoc
//
//	@ID				listStatusMappings
//	@Summary		List order status translations of a marketplace
//	@Tags			mappings
//	@Produce		json
//	@Security		BearerAuth
//	@Param			marketplace_id	query		int	true	"Marketplace id"
//	@Success		200				{object}	APIResponse[[]dto.StatusMappingResponse]
//	@Failure		400				{object}	ErrorResponse
//	@Router			/status-mappings [get]
func (h *MappingHandler) ListStatusMappings(c *gin.Context) {
	var q dto.StatusMappingQuery
	if !h.BindQuery(c, &q) {
		return
	}
	rows, err := h.statuses.List(c.Request.Context(), q.MarketplaceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]dto.StatusMappingResponse, len(rows))
	for i := range rows {
		out[i] = dto.NewStatusMappingResponse(&rows[i])
	}
	h.Success(c, out)
}

// PutStatusMappings godoc
//
//	@ID				putStatusMappings
//	@Summary		Store order status translations
//	@Description	Each pair is stored in both directions; an existing translation of the same status is replaced
//	@Tags			mappings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		dto.StatusMappingBatchRequest	true	"Pairs"
//	@Success		200		{object}	APIResponse[[]dto.StatusMappingResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Router			/status-mappings [put]
func (h *MappingHandler) PutStatusMappings(c *gin.Context) {
	var req dto.StatusMappingBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	touched := make(map[int64]struct{})
	for _, pair := range req.Pairs {
		if err := h.statuses.SavePair(c.Request.Context(), pair.MarketplaceID, pair.LocalStatus, pair.RemoteStatus); err != nil {
			h.HandleError(c, err)
			return
		}
		touched[pair.MarketplaceID] = struct{}{}
	}

	out := []dto.StatusMappingResponse{}
	for marketplaceID := range touched {
		rows, err := h.statuses.List(c.Request.Context(), marketplaceID)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		for i := range rows {
			out = append(out, dto.NewStatusMappingResponse(&rows[i]))
		}
	}
	h.Success(c, out)
}
