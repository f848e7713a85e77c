package controllers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/messledger-backend/api/responses"
	"github.com/angelmondragon/messledger-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MessLedger-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency concurrently and reports each failure.
// Nil dependencies (e.g. Redis when disabled) are skipped.
func HealthReady(cfg *config.Config, deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MessLedger-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		names := make([]string, 0, len(deps))
		for name, dep := range deps {
			if dep != nil {
				names = append(names, name)
			}
		}
		failures := make([]error, len(names))

		var g errgroup.Group
		for i, name := range names {
			i := i
			dep := deps[name]
			g.Go(func() error {
				failures[i] = dep.Ping(ctx)
				return nil
			})
		}
		_ = g.Wait()

		details := map[string]string{}
		for i, err := range failures {
			if err != nil {
				details[names[i]] = err.Error()
			}
		}
		if len(details) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(details))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
