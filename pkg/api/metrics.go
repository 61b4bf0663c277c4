package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *handlers) getMetrics(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}

	bucketMinutes := bucketMinutesForRange(c.Query("range"))
	summary, err := h.deps.Store.GetCostSummary(c.Request.Context(), id, bucketMinutes)
	if err != nil {
		writeError(c, err)
		return
	}

	agents, err := h.deps.Store.ListAgents(c.Request.Context(), id, "")
	if err != nil {
		writeError(c, err)
		return
	}
	byAgent := make([]gin.H, 0, len(agents))
	for _, a := range agents {
		byAgent = append(byAgent, gin.H{
			"agent_id": a.ID, "role": string(a.Role),
			"tokens_in": a.TotalTokensIn, "tokens_out": a.TotalTokensOut, "cost_cents": a.TotalCostCents,
		})
	}

	trend := make([]gin.H, 0, len(summary.Buckets))
	for _, b := range summary.Buckets {
		trend = append(trend, gin.H{"bucket_start": b.BucketStart, "cents": b.Cents, "tokens_in": b.TokensIn, "tokens_out": b.TokensOut})
	}

	warnings := h.deps.Coordinator.Warnings(id)
	warningDTOs := make([]gin.H, 0, len(warnings))
	for _, w := range warnings {
		warningDTOs = append(warningDTOs, gin.H{
			"id": w.ID, "category": w.Category, "message": w.Message, "created_at": w.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"cost_total_cents": summary.TotalCents,
		"tokens":           gin.H{"in": summary.TotalTokensIn, "out": summary.TotalTokensOut},
		"by_agent":         byAgent,
		"trend":            trend,
		"warnings":         warningDTOs,
	})
}

// bucketMinutesForRange maps a `range` query value like "1h", "15m", "1d"
// to the bucket width GetCostSummary groups cost_records by. An
// unrecognized or empty range falls back to hourly buckets.
func bucketMinutesForRange(rng string) int {
	rng = strings.TrimSpace(rng)
	if rng == "" {
		return 60
	}
	unit := rng[len(rng)-1]
	n, err := strconv.Atoi(rng[:len(rng)-1])
	if err != nil || n <= 0 {
		return 60
	}
	switch unit {
	case 'm':
		return n
	case 'h':
		return n * 60
	case 'd':
		return n * 60 * 24
	default:
		return 60
	}
}
