package db

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// HealthHandler answers GET /health with a database liveness probe.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}

		stat := pool.Stat()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":         "ok",
			"db_conns_total": stat.TotalConns(),
			"db_conns_idle":  stat.IdleConns(),
		})
	}
}
