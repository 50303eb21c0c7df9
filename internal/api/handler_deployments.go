package api

import (
	"github.com/labstack/echo/v4"
	"github.com/tsanders-rh/modelctl/internal/analytics"
	"github.com/tsanders-rh/modelctl/internal/deployment"
	"github.com/tsanders-rh/modelctl/internal/monitoring"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// DeploymentHandler handles deployment lifecycle endpoints
type DeploymentHandler struct {
	deployments *deployment.Service
	collector   *monitoring.Collector
	analytics   *analytics.Service
}

// NewDeploymentHandler creates a new deployment handler
func NewDeploymentHandler(deployments *deployment.Service, collector *monitoring.Collector, reports *analytics.Service) *DeploymentHandler {
	return &DeploymentHandler{
		deployments: deployments,
		collector:   collector,
		analytics:   reports,
	}
}

// CreateDeploymentRequest is the body of POST /api/v1/deployments
type CreateDeploymentRequest struct {
	Name       string                      `json:"name"`
	ModelID    string                      `json:"model_id"`
	ModelKind  string                      `json:"model_kind"`
	Venue      string                      `json:"venue"`
	Profile    string                      `json:"profile"`
	Resources  *types.ResourceRequirements `json:"resources"`
	Scaling    *types.ScalingPolicy        `json:"scaling"`
	CostPolicy *types.CostPolicy           `json:"cost_policy"`
	Provider   string                      `json:"provider"`
	Region     string                      `json:"region"`
	Metadata   map[string]string           `json:"metadata"`
}

func (r *CreateDeploymentRequest) toDeployRequest() *types.DeployRequest {
	return &types.DeployRequest{
		Name:       r.Name,
		ModelID:    r.ModelID,
		ModelKind:  types.ModelKind(r.ModelKind),
		Venue:      types.Venue(r.Venue),
		Profile:    r.Profile,
		Resources:  r.Resources,
		Scaling:    r.Scaling,
		CostPolicy: r.CostPolicy,
		Provider:   types.Provider(r.Provider),
		Region:     r.Region,
		Metadata:   r.Metadata,
	}
}

// UpdateDeploymentRequest is the body of PATCH /api/v1/deployments/:id
type UpdateDeploymentRequest struct {
	Resources          *types.ResourceRequirements `json:"resources"`
	Scaling            *types.ScalingPolicy        `json:"scaling"`
	CostPolicy         *types.CostPolicy           `json:"cost_policy"`
	Metadata           map[string]string           `json:"metadata"`
	DiscountedCapacity *bool                       `json:"discounted_capacity"`
}

// MigrateRequest is the body of POST /api/v1/deployments/:id/migrate
type MigrateRequest struct {
	Provider string `json:"provider" validate:"required,provider"`
	Region   string `json:"region" validate:"required"`
}

// DeploymentMetricsResponse pairs raw samples with their aggregates
type DeploymentMetricsResponse struct {
	Samples     []types.MetricSample     `json:"samples"`
	Cost        types.CostMetrics        `json:"cost"`
	Performance types.PerformanceMetrics `json:"performance"`
}

// Create handles POST /api/v1/deployments. With ?async=true the deploying
// snapshot is returned with 202 and provisioning continues in the background.
func (h *DeploymentHandler) Create(c echo.Context) error {
	var req CreateDeploymentRequest
	if err := c.Bind(&req); err != nil {
		return ErrorBadRequest(c, "Invalid request body")
	}
	ctx := c.Request().Context()

	if c.QueryParam("async") == "true" {
		// The task is tracked by the service and drained on Shutdown
		snapshot, _, err := h.deployments.StartDeploy(ctx, req.toDeployRequest())
		if err != nil {
			return ErrorFrom(c, err)
		}
		return SuccessAccepted(c, snapshot)
	}

	d, err := h.deployments.Deploy(ctx, req.toDeployRequest())
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessCreated(c, d)
}

// List handles GET /api/v1/deployments
func (h *DeploymentHandler) List(c echo.Context) error {
	filter := deployment.ListFilter{
		Status:  types.DeploymentStatus(c.QueryParam("status")),
		Venue:   types.Venue(c.QueryParam("venue")),
		ModelID: c.QueryParam("model_id"),
	}

	items, err := h.deployments.List(c.Request().Context(), filter)
	if err != nil {
		return ErrorFrom(c, err)
	}

	params := ParsePaginationParams(c)
	filters := map[string]interface{}{}
	if filter.Status != "" {
		filters["status"] = filter.Status
	}
	if filter.Venue != "" {
		filters["venue"] = filter.Venue
	}
	if filter.ModelID != "" {
		filters["model_id"] = filter.ModelID
	}

	return SuccessPaginated(c, paginate(items, params), CalculatePagination(params.Page, params.PerPage, len(items)), filters)
}

// Get handles GET /api/v1/deployments/:id
func (h *DeploymentHandler) Get(c echo.Context) error {
	d, err := h.deployments.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, d)
}

// Update handles PATCH /api/v1/deployments/:id
func (h *DeploymentHandler) Update(c echo.Context) error {
	var req UpdateDeploymentRequest
	if err := c.Bind(&req); err != nil {
		return ErrorBadRequest(c, "Invalid request body")
	}

	d, err := h.deployments.Update(c.Request().Context(), c.Param("id"), &types.UpdateRequest{
		Resources:          req.Resources,
		Scaling:            req.Scaling,
		CostPolicy:         req.CostPolicy,
		Metadata:           req.Metadata,
		DiscountedCapacity: req.DiscountedCapacity,
	})
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, d)
}

// Delete handles DELETE /api/v1/deployments/:id
func (h *DeploymentHandler) Delete(c echo.Context) error {
	if err := h.deployments.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessNoContent(c)
}

// Hibernate handles POST /api/v1/deployments/:id/hibernate
func (h *DeploymentHandler) Hibernate(c echo.Context) error {
	d, err := h.deployments.Hibernate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, d)
}

// Activate handles POST /api/v1/deployments/:id/activate
func (h *DeploymentHandler) Activate(c echo.Context) error {
	d, err := h.deployments.Activate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, d)
}

// Migrate handles POST /api/v1/deployments/:id/migrate
func (h *DeploymentHandler) Migrate(c echo.Context) error {
	var req MigrateRequest
	if err := c.Bind(&req); err != nil {
		return ErrorBadRequest(c, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return ErrorBadRequest(c, err.Error())
	}

	result, err := h.deployments.Migrate(c.Request().Context(), c.Param("id"), types.Provider(req.Provider), req.Region)
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, result)
}

// Metrics handles GET /api/v1/deployments/:id/metrics?since=&until=
func (h *DeploymentHandler) Metrics(c echo.Context) error {
	since, err := parseTimeParam(c, "since")
	if err != nil {
		return ErrorBadRequest(c, "Invalid since: "+err.Error())
	}
	until, err := parseTimeParam(c, "until")
	if err != nil {
		return ErrorBadRequest(c, "Invalid until: "+err.Error())
	}

	ctx := c.Request().Context()
	d, err := h.deployments.Get(ctx, c.Param("id"))
	if err != nil {
		return ErrorFrom(c, err)
	}

	samples, err := h.collector.History(ctx, d.ID, since, until)
	if err != nil {
		return ErrorFrom(c, err)
	}
	if samples == nil {
		samples = []types.MetricSample{}
	}

	return SuccessOK(c, &DeploymentMetricsResponse{
		Samples:     samples,
		Cost:        monitoring.AggregateCost(d, samples),
		Performance: monitoring.AggregatePerformance(d, samples),
	})
}

// Outcomes handles GET /api/v1/deployments/:id/outcomes
func (h *DeploymentHandler) Outcomes(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := h.deployments.Get(ctx, c.Param("id")); err != nil {
		return ErrorFrom(c, err)
	}

	outcomes, err := h.analytics.OutcomeHistory(ctx, c.Param("id"))
	if err != nil {
		return ErrorFrom(c, err)
	}
	if outcomes == nil {
		outcomes = []*types.OptimizationOutcome{}
	}
	return SuccessOK(c, outcomes)
}
