package api

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	core "giftvault/server/internal/service"
)

// AdminHandler serves the pool management endpoints
type AdminHandler struct {
	deps *Dependencies
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(deps *Dependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// InitRequest selects which tiers to reinitialize; empty means all
type InitRequest struct {
	Tiers []string `json:"tiers"`
}

// Init POST /api/admin/init
// Clears the selected pools and refills them from scratch. Runs take
// minutes against the real creator, so the work happens synchronously
// and the response carries the per-tier results.
func (h *AdminHandler) Init(c *gin.Context) {
	var req InitRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		core.FailWithMessage(c, core.ErrInvalidParam, "invalid request body")
		return
	}

	tiers := req.Tiers
	if len(tiers) == 0 {
		tiers = h.deps.Registry.Tiers()
	}

	results := make([]core.RunResult, 0, len(tiers))
	for _, tier := range tiers {
		if err := h.deps.Registry.Clear(tier); err != nil {
			core.FailWithMessage(c, core.ErrTierUnknown, "unknown tier: "+tier)
			return
		}
		if err := core.FlushRegistry(h.deps.Registry, h.deps.Store); err != nil {
			log.Error().Err(err).Str("tier", tier).Msg("Snapshot flush failed after clear")
		}
		res, err := h.deps.Replenisher.Run(c.Request.Context(), tier)
		if err != nil {
			core.FailWithMessage(c, core.ErrInternalServer, err.Error())
			return
		}
		results = append(results, res)
	}

	core.Success(c, gin.H{"results": results})
}

// AddOne POST /api/admin/pools/:tier/add-one
func (h *AdminHandler) AddOne(c *gin.Context) {
	tier := c.Param("tier")

	size, err := h.deps.Replenisher.AddOne(c.Request.Context(), tier)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrTierNotConfigured):
			core.FailWithCode(c, core.ErrTierUnknown)
		case errors.Is(err, core.ErrAlreadyFull):
			core.FailWithData(c, core.ErrPoolAtTarget, gin.H{"tier": tier, "size": size})
		default:
			code := core.ErrCreatorFailed
			if ce, ok := core.AsCreationError(err); ok && ce.Kind == core.CreationTimeout {
				code = core.ErrCreatorTimeout
			}
			core.FailWithMessage(c, code, err.Error())
		}
		return
	}

	core.Success(c, gin.H{"tier": tier, "size": size})
}

// Fill POST /api/admin/pools/:tier/fill
// Tops the pool up to its target without clearing it first.
func (h *AdminHandler) Fill(c *gin.Context) {
	tier := c.Param("tier")

	res, err := h.deps.Replenisher.Run(c.Request.Context(), tier)
	if err != nil {
		if errors.Is(err, core.ErrTierNotConfigured) {
			core.FailWithCode(c, core.ErrTierUnknown)
			return
		}
		core.FailWithMessage(c, core.ErrInternalServer, err.Error())
		return
	}
	if res.Skipped {
		core.FailWithData(c, core.ErrReplenishBusy, res)
		return
	}

	core.Success(c, res)
}

// Events GET /api/admin/events?limit=50
func (h *AdminHandler) Events(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit < 1 || limit > 1000 {
		core.FailWithMessage(c, core.ErrInvalidParam, "limit must be between 1 and 1000")
		return
	}

	events, err := h.deps.Ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		core.FailWithMessage(c, core.ErrInternalServer, err.Error())
		return
	}
	core.Success(c, gin.H{"events": events})
}
