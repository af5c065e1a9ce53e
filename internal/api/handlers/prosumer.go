package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"microgrid-sim/internal/api/models"
	"microgrid-sim/internal/model"
)

// ProsumerHandler lists the prosumers of the loaded environment
type ProsumerHandler struct {
	env     *model.Environment
	battery model.BatteryParams
}

func NewProsumerHandler(env *model.Environment, battery model.BatteryParams) *ProsumerHandler {
	return &ProsumerHandler{env: env, battery: battery}
}

// ListProsumers handles GET /api/v1/prosumers
func (h *ProsumerHandler) ListProsumers(c *gin.Context) {
	out := make([]models.ProsumerInfo, 0, len(h.env.Profiles))
	for _, p := range h.env.Profiles {
		out = append(out, models.ProsumerInfo{
			Name:                 p.Name,
			BatteryCount:         p.BatteryCount,
			PVSize:               p.PVSize,
			CapacityKWh:          h.battery.Capacity(p.BatteryCount),
			RateLimitKW:          h.battery.RateLimit(p.BatteryCount),
			NoiseScale:           p.NoiseScale,
			GenerationNoiseScale: p.GenerationNoiseScale,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"day_length": h.env.DayLength,
		"days":       h.env.Days(),
		"prosumers":  out,
	})
}
