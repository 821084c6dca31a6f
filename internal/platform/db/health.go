package db

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is implemented by every dependency the readiness probe checks.
// *pgxpool.Pool satisfies it directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// DependencyStatus is one line of the readiness report.
type DependencyStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HealthHandler pings every registered dependency and answers 503 when any
// of them is down.
func HealthHandler(deps map[string]Pinger) echo.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		healthy := true
		statuses := make([]DependencyStatus, 0, len(names))
		for _, name := range names {
			st := DependencyStatus{Name: name, Healthy: true}
			if err := deps[name].Ping(ctx); err != nil {
				st.Healthy = false
				st.Error = err.Error()
				healthy = false
			}
			statuses = append(statuses, st)
		}

		if !healthy {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":       "unhealthy",
				"dependencies": statuses,
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":       "healthy",
			"dependencies": statuses,
		})
	}
}
