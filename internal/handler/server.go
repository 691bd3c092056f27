package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"comfyserve/internal/comfy"
)

// Server exposes the worker over HTTP with a RunPod-shaped surface:
// synchronous execution, fire-and-forget queueing, and status lookup.
type Server struct {
	handler *Handler
	queue   *Queue // nil when redis is not configured
	comfy   *comfy.Client
}

func NewServer(h *Handler, q *Queue, client *comfy.Client) *Server {
	return &Server{handler: h, queue: q, comfy: client}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/runsync", s.runSync).Methods(http.MethodPost)
	r.HandleFunc("/run", s.run).Methods(http.MethodPost)
	r.HandleFunc("/status/{id}", s.status).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	return r
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request) {
	job, err := decodeJob(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: err.Error(), ErrorType: ErrTypeValidation})
		return
	}

	resp := s.handler.Handle(r.Context(), job)
	status := http.StatusOK
	if resp.Error != "" {
		status = statusForError(resp.ErrorType)
	}
	writeJSON(w, status, resp)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Error:     "async queue not configured",
			ErrorType: ErrTypeInternal,
		})
		return
	}

	job, err := decodeJob(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: err.Error(), ErrorType: ErrTypeValidation})
		return
	}

	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		zap.L().Error("enqueue failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Response{Error: err.Error(), ErrorType: ErrTypeInternal})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": job.ID, "status": StatusInQueue})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Error:     "async queue not configured",
			ErrorType: ErrTypeInternal,
		})
		return
	}

	id := mux.Vars(r)["id"]
	st, err := s.queue.Status(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, Response{Error: err.Error(), ErrorType: ErrTypeInternal})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	engineUp := s.comfy.Healthy(r.Context())
	status := http.StatusOK
	if !engineUp {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"worker": true, "engine": engineUp})
}

func decodeJob(r *http.Request) (Job, error) {
	var job Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		return Job{}, err
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	return job, nil
}

func statusForError(errType string) int {
	switch errType {
	case ErrTypeValidation:
		return http.StatusBadRequest
	case ErrTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("worker listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
