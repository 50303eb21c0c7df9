package api

import (
	"github.com/labstack/echo/v4"
	"github.com/tsanders-rh/modelctl/internal/optimizer"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// OptimizerHandler triggers cost optimization passes on demand
type OptimizerHandler struct {
	optimizer *optimizer.Optimizer
}

// NewOptimizerHandler creates a new optimizer handler
func NewOptimizerHandler(o *optimizer.Optimizer) *OptimizerHandler {
	return &OptimizerHandler{optimizer: o}
}

// BatchResponse wraps the outcomes of a batch pass
type BatchResponse struct {
	Outcomes []*types.OptimizationOutcome `json:"outcomes"`
	Count    int                          `json:"count"`
}

// Optimize handles POST /api/v1/deployments/:id/optimize
func (h *OptimizerHandler) Optimize(c echo.Context) error {
	outcome, err := h.optimizer.Optimize(c.Request().Context(), c.Param("id"))
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, outcome)
}

// Run handles POST /api/v1/optimizer/run
func (h *OptimizerHandler) Run(c echo.Context) error {
	outcomes, err := h.optimizer.RunBatch(c.Request().Context())
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, &BatchResponse{Outcomes: outcomes, Count: len(outcomes)})
}
