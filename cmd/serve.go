package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/appraisement/appraisal-engine/internal/engine"
	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the appraisal request API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Engine),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(e *engine.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/requests", func(w http.ResponseWriter, req *http.Request) {
		var in engine.StartInput
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if in.Address == "" {
			writeError(w, http.StatusBadRequest, "address is required")
			return
		}

		request, started, err := e.Start(req.Context(), in)
		if err != nil {
			zap.L().Error("start request failed", zap.String("address", in.Address), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not start appraisal")
			return
		}

		status := http.StatusAccepted
		if !started {
			// An equivalent address is already in flight; point at that run.
			status = http.StatusOK
		}
		writeJSON(w, status, request)
	})

	r.Get("/requests", func(w http.ResponseWriter, req *http.Request) {
		filter := store.RequestFilter{
			Status: model.RequestStatus(req.URL.Query().Get("status")),
		}
		if v := req.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := req.URL.Query().Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		requests, err := e.ListRequests(req.Context(), filter)
		if err != nil {
			zap.L().Error("list requests failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not list requests")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
	})

	r.Get("/requests/{id}", func(w http.ResponseWriter, req *http.Request) {
		request, err := e.GetStatus(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			zap.L().Error("get request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not load request")
			return
		}
		if request == nil {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		writeJSON(w, http.StatusOK, request)
	})

	r.Get("/requests/{id}/appraisal", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		request, err := e.GetStatus(req.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not load request")
			return
		}
		if request == nil {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}

		result, err := e.GetAppraisal(req.Context(), id)
		if err != nil {
			zap.L().Error("get appraisal failed", zap.String("request_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not load appraisal")
			return
		}
		if result == nil {
			writeError(w, http.StatusNotFound, "no appraisal yet for this request")
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
