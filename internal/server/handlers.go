package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rmarkelov/archivarius/internal/database"
)

func newExperiment(exportID int64, collection, meta string) *database.Experiment {
	experiment := &database.Experiment{
		ExportID:       sql.NullInt64{Int64: exportID, Valid: true},
		CollectionName: collection,
	}
	if meta != "" {
		experiment.MetaData = sql.NullString{String: meta, Valid: true}
	}
	return experiment
}

// envelope is the uniform response wrapper: data on success, error otherwise.
type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(envelope{Error: err.Error()}); encErr != nil {
		s.logger.Error("Failed to encode error response", "error", encErr)
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type addExportRequest struct {
	ChannelID  string `json:"channel_id"`
	DataPath   string `json:"data_path"`
	PhotosPath string `json:"photos_path"`
}

func (s *Server) handleAddExport(w http.ResponseWriter, r *http.Request) {
	var req addExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.ChannelID == "" || req.DataPath == "" || req.PhotosPath == "" {
		s.respondError(w, http.StatusBadRequest,
			errors.New("channel_id, data_path and photos_path are required"))
		return
	}

	export := &database.Export{
		ChannelID:  req.ChannelID,
		DataPath:   req.DataPath,
		PhotosPath: req.PhotosPath,
	}
	if err := s.store.AddExport(r.Context(), export); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			s.respondError(w, http.StatusConflict, err)
			return
		}
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusCreated, export)
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	exports, err := s.store.ListExports(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, exports)
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	export, err := s.store.GetExport(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if export == nil {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("export %d not found", id))
		return
	}
	s.respond(w, http.StatusOK, export)
}

// loadExport resolves the export named in the path, writing the error
// response itself when resolution fails.
func (s *Server) loadExport(w http.ResponseWriter, r *http.Request) *database.Export {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return nil
	}
	export, err := s.store.GetExport(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return nil
	}
	if export == nil {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("export %d not found", id))
		return nil
	}
	return export
}

type ingestRequest struct {
	GarbageSpecPath string   `json:"garbage_spec_path,omitempty"`
	Exceptions      []string `json:"exceptions,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	export := s.loadExport(w, r)
	if export == nil {
		return
	}

	var req ingestRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
			return
		}
	}
	specPath := s.garbageSpecPath
	if req.GarbageSpecPath != "" {
		specPath = req.GarbageSpecPath
	}

	metadata := fmt.Sprintf("ingest export %d (%s)", export.ID, export.ChannelID)
	job, err := s.runner.Launch(r.Context(), metadata, func(ctx context.Context) error {
		_, err := s.ingestor.Run(ctx, export, specPath, req.Exceptions)
		return err
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusAccepted, job)
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	export := s.loadExport(w, r)
	if export == nil {
		return
	}

	metadata := fmt.Sprintf("describe export %d (%s)", export.ID, export.ChannelID)
	job, err := s.runner.Launch(r.Context(), metadata, func(ctx context.Context) error {
		_, err := s.describer.Run(ctx, export.ID)
		return err
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusAccepted, job)
}

type embedRequest struct {
	CollectionName string `json:"collection_name,omitempty"`
	MetaData       string `json:"meta_data,omitempty"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	export := s.loadExport(w, r)
	if export == nil {
		return
	}

	var req embedRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
			return
		}
	}

	collection := req.CollectionName
	if collection == "" {
		collection = fmt.Sprintf("%s_%d", export.ChannelID, time.Now().UTC().Unix())
	}

	experiment := newExperiment(export.ID, collection, req.MetaData)
	if err := s.store.AddExperiment(r.Context(), experiment); err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	metadata := fmt.Sprintf("embed export %d into %s", export.ID, collection)
	job, err := s.runner.Launch(r.Context(), metadata, func(ctx context.Context) error {
		_, err := s.embedder.Run(ctx, export.ID, collection)
		return err
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	s.respond(w, http.StatusAccepted, map[string]any{
		"job":        job,
		"experiment": experiment,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	list, err := s.store.ListJobs(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, list)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if job == nil {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("job %d not found", id))
		return
	}
	s.respond(w, http.StatusOK, job)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListExperiments(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, list)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	experiment, err := s.store.GetExperiment(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if experiment == nil {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("experiment %d not found", id))
		return
	}
	s.respond(w, http.StatusOK, experiment)
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	experiment, err := s.store.GetExperiment(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if experiment == nil {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("experiment %d not found", id))
		return
	}

	// The collection goes first; a failure there leaves the record in place
	// so the delete can be retried.
	if err := s.vectors.DeleteCollection(r.Context(), experiment.CollectionName); err != nil {
		s.respondError(w, http.StatusBadGateway, err)
		return
	}
	if err := s.store.DeleteExperiment(r.Context(), id); err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type searchRequest struct {
	ExperimentID int64  `json:"experiment_id"`
	Query        string `json:"query"`
	TopK         int    `json:"top_k,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("query is required"))
		return
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}

	experiment, err := s.store.GetExperiment(r.Context(), req.ExperimentID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if experiment == nil {
		s.respondError(w, http.StatusNotFound,
			fmt.Errorf("experiment %d not found", req.ExperimentID))
		return
	}

	vectors, err := s.model.Embed(r.Context(), []string{req.Query})
	if err != nil {
		s.respondError(w, http.StatusBadGateway, fmt.Errorf("embed query: %w", err))
		return
	}

	results, err := s.vectors.Search(r.Context(), experiment.CollectionName, vectors[0], req.TopK)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err)
		return
	}
	s.respond(w, http.StatusOK, results)
}
