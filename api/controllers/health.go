package controllers

import (
	"net/http"

	"github.com/rafflehq/rafflehq-backend/api/responses"
	"github.com/rafflehq/rafflehq-backend/pkg/config"
	"github.com/rafflehq/rafflehq-backend/pkg/db"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
	"github.com/rafflehq/rafflehq-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RaffleHQ-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness of the backing stores. Redis is
// optional wiring; when absent only the database gates readiness.
func HealthReady(cfg *config.Config, logg *logger.Logger, database db.Pinger, cache redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RaffleHQ-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true

		if database == nil {
			checks["database"] = "unconfigured"
			healthy = false
		} else if err := database.Ping(r.Context()); err != nil {
			checks["database"] = "down"
			healthy = false
		} else {
			checks["database"] = "ok"
		}

		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				checks["redis"] = "down"
				healthy = false
			} else {
				checks["redis"] = "ok"
			}
		}

		if !healthy {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, checks)
	}
}
