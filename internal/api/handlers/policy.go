package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"microgrid-sim/internal/api/models"
	"microgrid-sim/internal/pricing"
)

// PolicyHandler handles pricing-policy requests
type PolicyHandler struct{}

func NewPolicyHandler() *PolicyHandler {
	return &PolicyHandler{}
}

// ListPolicies handles GET /api/v1/policies
func (h *PolicyHandler) ListPolicies(c *gin.Context) {
	catalog := pricing.Catalog()
	policies := make([]models.PolicyInfo, 0, len(catalog))
	for _, info := range catalog {
		params := make([]models.ParameterInfo, 0, len(info.Parameters))
		for _, p := range info.Parameters {
			params = append(params, models.ParameterInfo{
				Name:        p.Name,
				Type:        p.Type,
				Description: p.Description,
				Default:     p.Default,
			})
		}
		policies = append(policies, models.PolicyInfo{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  params,
		})
	}
	c.JSON(http.StatusOK, gin.H{"policies": policies})
}
