package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geotargets-cli/internal/geoerr"
	"github.com/sells-group/geotargets-cli/internal/metrics"
	"github.com/sells-group/geotargets-cli/internal/table"
	"github.com/sells-group/geotargets-cli/internal/updater"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve lookups and updates over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return usageErrorf("%s", err.Error())
		}

		u, cleanup, err := newUpdater(ctx, cfg)
		if err != nil {
			return eris.Wrap(err, "serve: init updater")
		}
		defer cleanup()

		metrics.Init()
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(table.NewReader(tablePath()), u, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

// lookupParams are the query parameters accepted by GET /lookup, in
// priority order.
var lookupParams = []string{"loc", "loc_physical_ms"}

// api holds the handler dependencies.
type api struct {
	reader  *table.Reader
	updater *updater.Updater
}

// newRouter builds the HTTP surface. upd may be nil, in which case
// POST /update is not routed.
func newRouter(reader *table.Reader, upd *updater.Updater, corsOrigins []string) http.Handler {
	a := &api{reader: reader, updater: upd}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/lookup", a.lookup)
	if upd != nil {
		r.Post("/update", a.update)
	}
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func (a *api) lookup(w http.ResponseWriter, r *http.Request) {
	// The first parameter present wins, even when its value is empty.
	q := r.URL.Query()
	var id string
	for _, p := range lookupParams {
		if q.Has(p) {
			id = q.Get(p)
			break
		}
	}
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "missing_parameter",
			"param": "loc_physical_ms",
		})
		return
	}

	rec, err := findRecord(a.reader, id)
	if err != nil {
		zap.L().Error("lookup failed", zap.String("criteria_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "lookup_failed",
			"message": err.Error(),
		})
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, newNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, rec.ToMap())
}

func (a *api) update(w http.ResponseWriter, r *http.Request) {
	res, err := a.updater.Run(r.Context(), updater.Request{
		Country: r.URL.Query().Get("country"),
	})
	if err != nil {
		kind := string(geoerr.KindOf(err))
		if kind == "" {
			kind = "internal"
		}
		writeJSON(w, geoerr.HTTPStatus(err), map[string]string{
			"error":   kind,
			"reason":  geoerr.ReasonOf(err),
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":   res.Path,
		"rows":   res.Kept,
		"bytes":  res.Bytes,
		"kind":   res.Kind,
		"run_id": res.RunID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
