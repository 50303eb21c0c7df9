package api

import (
	"github.com/labstack/echo/v4"
	"github.com/tsanders-rh/modelctl/internal/tiering"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// StorageHandler exposes artifact access tracking and tier moves
type StorageHandler struct {
	engine *tiering.Engine
}

// NewStorageHandler creates a new storage handler
func NewStorageHandler(engine *tiering.Engine) *StorageHandler {
	return &StorageHandler{engine: engine}
}

// AccessResponse reports how an artifact is read and where it belongs
type AccessResponse struct {
	Key     string              `json:"key"`
	Pattern types.AccessPattern `json:"access_pattern"`
	Tier    types.Tier          `json:"target_tier"`
}

// OptimizeStorageRequest narrows a tiering pass to one artifact. An empty
// body runs the pass over every model and optimized model.
type OptimizeStorageRequest struct {
	ModelID          string `json:"model_id"`
	OptimizedModelID string `json:"optimized_model_id"`
}

// GetAccess handles GET /api/v1/artifacts/:key/access
func (h *StorageHandler) GetAccess(c echo.Context) error {
	key := c.Param("key")
	pattern, err := h.engine.AccessPattern(c.Request().Context(), key)
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, &AccessResponse{Key: key, Pattern: pattern, Tier: types.TierFor(pattern)})
}

// RecordAccess handles POST /api/v1/artifacts/:key/access
func (h *StorageHandler) RecordAccess(c echo.Context) error {
	rec, err := h.engine.RecordAccess(c.Request().Context(), c.Param("key"))
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, rec)
}

// Optimize handles POST /api/v1/storage/optimize
func (h *StorageHandler) Optimize(c echo.Context) error {
	var req OptimizeStorageRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return ErrorBadRequest(c, "Invalid request body")
		}
	}
	ctx := c.Request().Context()

	switch {
	case req.ModelID != "" && req.OptimizedModelID != "":
		return ErrorBadRequest(c, "Set at most one of model_id and optimized_model_id")
	case req.ModelID != "":
		result, err := h.engine.OptimizeModel(ctx, req.ModelID)
		if err != nil {
			return ErrorFrom(c, err)
		}
		return SuccessOK(c, result)
	case req.OptimizedModelID != "":
		result, err := h.engine.OptimizeOptimizedModel(ctx, req.OptimizedModelID)
		if err != nil {
			return ErrorFrom(c, err)
		}
		return SuccessOK(c, result)
	}

	results, err := h.engine.RunBatch(ctx)
	if err != nil {
		return ErrorFrom(c, err)
	}
	if results == nil {
		results = []*types.StorageResult{}
	}
	return SuccessOK(c, results)
}
