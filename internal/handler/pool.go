package api

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	core "giftvault/server/internal/service"
)

// PoolHandler serves consume and inspection requests
type PoolHandler struct {
	deps *Dependencies
}

// NewPoolHandler creates a pool handler
func NewPoolHandler(deps *Dependencies) *PoolHandler {
	return &PoolHandler{deps: deps}
}

// ConsumeRequest is the consume payload
type ConsumeRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// Consume POST /api/cards/consume
// Pops the oldest card of the requested tier. An empty pool falls back to
// creating one card on the spot, which is slow but never leaves the caller
// empty-handed while the creator is up.
func (h *PoolHandler) Consume(c *gin.Context) {
	var req ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.FailWithMessage(c, core.ErrInvalidParam, "invalid request body")
		return
	}

	card, err := h.deps.Registry.TryConsume(req.Tier)
	if err == nil {
		h.deps.Ledger.Record(c.Request.Context(), core.PoolEvent{
			Type:   core.EventConsume,
			Tier:   req.Tier,
			CardID: card.ID,
			Size:   h.deps.Registry.Size(req.Tier),
			At:     time.Now(),
		})
		h.deps.Archive.CardConsumed(card.ID)
		h.maybeReplenish(req.Tier)
		core.Success(c, gin.H{"card": card, "on_demand": false})
		return
	}

	if errors.Is(err, core.ErrTierNotConfigured) {
		core.FailWithCode(c, core.ErrTierUnknown)
		return
	}
	if !errors.Is(err, core.ErrCardPoolEmpty) {
		log.Error().Err(err).Str("tier", req.Tier).Msg("Consume failed")
		core.FailWithCode(c, core.ErrInternalServer)
		return
	}

	log.Warn().Str("tier", req.Tier).Msg("Pool empty, creating card on demand")
	h.maybeReplenish(req.Tier)

	card, err = h.deps.Replenisher.CreateDirect(c.Request.Context(), req.Tier)
	if err != nil {
		code := core.ErrCreatorFailed
		if ce, ok := core.AsCreationError(err); ok && ce.Kind == core.CreationTimeout {
			code = core.ErrCreatorTimeout
		}
		core.FailWithMessage(c, code, err.Error())
		return
	}

	h.deps.Ledger.Record(c.Request.Context(), core.PoolEvent{
		Type:   core.EventOnDemand,
		Tier:   req.Tier,
		CardID: card.ID,
		Size:   h.deps.Registry.Size(req.Tier),
		At:     time.Now(),
	})
	h.deps.Archive.CardCreated(req.Tier, card)
	h.deps.Archive.CardConsumed(card.ID)
	core.Success(c, gin.H{"card": card, "on_demand": true})
}

// maybeReplenish kicks off a background refill when instant replenishment
// is enabled and nobody else owns the tier yet.
func (h *PoolHandler) maybeReplenish(tier string) {
	if !h.deps.Config.Replenish.OnConsume {
		return
	}
	if h.deps.Registry.Deficit(tier) <= 0 || h.deps.Registry.Replenishing(tier) {
		return
	}
	go func() {
		if _, err := h.deps.Replenisher.Run(context.Background(), tier); err != nil {
			log.Error().Err(err).Str("tier", tier).Msg("Background replenishment errored")
		}
	}()
}

// Inspect GET /api/pools - all pools with their cards
func (h *PoolHandler) Inspect(c *gin.Context) {
	withCards := c.Query("cards") != "false"
	core.Success(c, gin.H{"pools": h.deps.Registry.Stats(withCards)})
}

// InspectTier GET /api/pools/:tier
func (h *PoolHandler) InspectTier(c *gin.Context) {
	tier := c.Param("tier")
	if _, ok := h.deps.Registry.TierConfig(tier); !ok {
		core.FailWithCode(c, core.ErrTierUnknown)
		return
	}
	for _, st := range h.deps.Registry.Stats(true) {
		if st.Tier == tier {
			core.Success(c, st)
			return
		}
	}
	core.FailWithCode(c, core.ErrTierUnknown)
}

// Health GET /health - pool health plus process stats
func (h *PoolHandler) Health(c *gin.Context) {
	status := "healthy"
	checks := make(map[string]gin.H)

	for _, st := range h.deps.Registry.Stats(false) {
		tierStatus := "healthy"
		if st.Size < st.Min {
			tierStatus = "degraded"
			status = "degraded"
		}
		checks[st.Tier] = gin.H{
			"status":       tierStatus,
			"size":         st.Size,
			"target":       st.Target,
			"min":          st.Min,
			"replenishing": st.Replenishing,
		}
	}

	consumed, replenished, failed := h.deps.Registry.Counters()
	resp := gin.H{
		"status":  status,
		"checks":  checks,
		"syncing": h.deps.Store.Syncing(),
		"counters": gin.H{
			"consumed":    consumed,
			"replenished": replenished,
			"failed":      failed,
		},
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
		"time":           time.Now().Format(time.RFC3339),
	}
	if h.deps.Stats != nil {
		resp["process"] = h.deps.Stats.Collect()
	}
	core.Success(c, resp)
}
