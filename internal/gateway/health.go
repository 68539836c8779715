package gateway

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/skirmish-net/skirmish/internal/shared"
)

type ComponentStatus string

const (
	StatusOK    ComponentStatus = "ok"
	StatusError ComponentStatus = "error"
	// StatusDisabled marks an optional component that is not configured.
	StatusDisabled ComponentStatus = "disabled"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type ComponentHealth struct {
	Status ComponentStatus `json:"status"`
	Detail string          `json:"detail,omitempty"`
}

type HealthCheckResult struct {
	Status     HealthStatus               `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// HealthChecker reports liveness and readiness. Optional components that
// are not configured do not affect readiness.
type HealthChecker struct {
	db        *sql.DB
	hub       *Hub
	validator *shared.Validator
}

func NewHealthChecker(db *sql.DB, hub *Hub, validator *shared.Validator) *HealthChecker {
	return &HealthChecker{db: db, hub: hub, validator: validator}
}

func (hc *HealthChecker) CheckLiveness(ctx context.Context) HealthCheckResult {
	return HealthCheckResult{
		Status:     HealthHealthy,
		Components: map[string]ComponentHealth{},
		Timestamp:  time.Now().UTC(),
	}
}

func (hc *HealthChecker) CheckReadiness(ctx context.Context) HealthCheckResult {
	components := map[string]ComponentHealth{
		"database":      hc.checkDatabase(ctx),
		"websocket_hub": hc.checkHub(),
		"schema":        hc.checkSchema(),
	}

	status := HealthHealthy
	for _, comp := range components {
		if comp.Status == StatusError {
			status = HealthUnhealthy
			break
		}
	}
	return HealthCheckResult{
		Status:     status,
		Components: components,
		Timestamp:  time.Now().UTC(),
	}
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentHealth {
	if hc.db == nil {
		return ComponentHealth{Status: StatusDisabled, Detail: "violation audit not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := hc.db.PingContext(ctx); err != nil {
		return ComponentHealth{Status: StatusError, Detail: err.Error()}
	}
	return ComponentHealth{Status: StatusOK}
}

func (hc *HealthChecker) checkHub() ComponentHealth {
	if hc.hub == nil {
		return ComponentHealth{Status: StatusError, Detail: "websocket hub not configured"}
	}
	if err := hc.hub.ctx.Err(); err != nil {
		return ComponentHealth{Status: StatusError, Detail: "websocket hub stopped"}
	}
	return ComponentHealth{Status: StatusOK}
}

// The schema artifact is informational, so drift is reported but never
// makes the gateway unready.
func (hc *HealthChecker) checkSchema() ComponentHealth {
	if hc.validator == nil || !hc.validator.Artifact().Loaded() {
		return ComponentHealth{Status: StatusDisabled, Detail: "schema artifact not loaded"}
	}
	if drift := hc.validator.Drift(); len(drift) > 0 {
		return ComponentHealth{Status: StatusOK, Detail: "drift: " + strings.Join(drift, "; ")}
	}
	return ComponentHealth{Status: StatusOK}
}
