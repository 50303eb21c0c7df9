package api

import (
	"github.com/labstack/echo/v4"
	"github.com/tsanders-rh/modelctl/internal/registry"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// ModelHandler handles model registry endpoints
type ModelHandler struct {
	registry *registry.Registry
}

// NewModelHandler creates a new model handler
func NewModelHandler(reg *registry.Registry) *ModelHandler {
	return &ModelHandler{registry: reg}
}

// CreateModelRequest registers a model artifact
type CreateModelRequest struct {
	Name        string            `json:"name"`
	Framework   string            `json:"framework"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	StoragePath string            `json:"storage_path"`
	Metadata    map[string]string `json:"metadata"`
}

// CreateOptimizedRequest registers an optimized variant of a model
type CreateOptimizedRequest struct {
	Technique      string                  `json:"technique"`
	HardwareTarget string                  `json:"hardware_target"`
	StoragePath    string                  `json:"storage_path"`
	Delta          *types.PerformanceDelta `json:"delta"`
	Metadata       map[string]string       `json:"metadata"`
}

// Create handles POST /api/v1/models
func (h *ModelHandler) Create(c echo.Context) error {
	var req CreateModelRequest
	if err := c.Bind(&req); err != nil {
		return ErrorBadRequest(c, "Invalid request body")
	}

	m, err := h.registry.RegisterModel(c.Request().Context(), &types.Model{
		Name:        req.Name,
		Framework:   types.Framework(req.Framework),
		Version:     req.Version,
		Description: req.Description,
		StoragePath: req.StoragePath,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessCreated(c, m)
}

// List handles GET /api/v1/models
func (h *ModelHandler) List(c echo.Context) error {
	models, err := h.registry.ListModels(c.Request().Context())
	if err != nil {
		return ErrorFrom(c, err)
	}

	params := ParsePaginationParams(c)
	return SuccessPaginated(c, paginate(models, params), CalculatePagination(params.Page, params.PerPage, len(models)), nil)
}

// Get handles GET /api/v1/models/:id
func (h *ModelHandler) Get(c echo.Context) error {
	m, err := h.registry.GetModel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, m)
}

// Delete handles DELETE /api/v1/models/:id
func (h *ModelHandler) Delete(c echo.Context) error {
	if err := h.registry.DeleteModel(c.Request().Context(), c.Param("id")); err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessNoContent(c)
}

// CreateOptimized handles POST /api/v1/models/:id/optimized
func (h *ModelHandler) CreateOptimized(c echo.Context) error {
	var req CreateOptimizedRequest
	if err := c.Bind(&req); err != nil {
		return ErrorBadRequest(c, "Invalid request body")
	}

	m := &types.OptimizedModel{
		OriginalModelID: c.Param("id"),
		Technique:       types.Technique(req.Technique),
		HardwareTarget:  types.HardwareTarget(req.HardwareTarget),
		StoragePath:     req.StoragePath,
		Metadata:        req.Metadata,
	}
	if req.Delta != nil {
		m.Delta = *req.Delta
	}

	created, err := h.registry.RegisterOptimizedModel(c.Request().Context(), m)
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessCreated(c, created)
}

// ListOptimized handles GET /api/v1/models/:id/optimized
func (h *ModelHandler) ListOptimized(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := h.registry.GetModel(ctx, c.Param("id")); err != nil {
		return ErrorFrom(c, err)
	}

	variants, err := h.registry.ListOptimizedModels(ctx, c.Param("id"))
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, variants)
}

// GetOptimized handles GET /api/v1/optimized-models/:id
func (h *ModelHandler) GetOptimized(c echo.Context) error {
	m, err := h.registry.GetOptimizedModel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, m)
}

// DeleteOptimized handles DELETE /api/v1/optimized-models/:id
func (h *ModelHandler) DeleteOptimized(c echo.Context) error {
	if err := h.registry.DeleteOptimizedModel(c.Request().Context(), c.Param("id")); err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessNoContent(c)
}
