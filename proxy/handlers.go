package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/geoengine/geoengine/config"
	"github.com/geoengine/geoengine/engine"
	"github.com/geoengine/geoengine/jobs"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    Version,
		Uptime:     time.Since(s.startedAt).Truncate(time.Second).String(),
		MaxWorkers: s.cfg.MaxWorkers,
	})
}

// --- Job handlers ---

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Project == "" || req.Tool == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "project and tool are required"})
		return
	}

	projectPath, err := s.settings.ProjectPath(req.Project)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	cfg, err := config.LoadProjectDir(projectPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	inputs := make([]string, 0, len(req.Inputs))
	for k, v := range req.Inputs {
		inputs = append(inputs, k+"="+v)
	}
	sort.Strings(inputs)

	builder := engine.NewBuilder(cfg, projectPath, s.probe)
	plan, err := builder.Build(r.Context(), engine.Request{
		Tool:      req.Tool,
		Inputs:    inputs,
		OutputDir: req.OutputDir,
		JSONMode:  true,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}

	job := s.manager.Submit(plan, jobs.Meta{
		Project:   req.Project,
		Tool:      req.Tool,
		OutputDir: req.OutputDir,
	})

	writeJSON(w, http.StatusCreated, SubmitJobResponse{ID: job.ID, State: string(job.State)})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.Cancel(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, jobs.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleJobOutput(w http.ResponseWriter, r *http.Request) {
	files, err := s.manager.Output(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	resp := OutputResponse{Files: make([]FileResponse, 0, len(files))}
	for _, f := range files {
		resp.Files = append(resp.Files, FileResponse{Name: f.Name, Path: f.Path, Size: f.Size})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.manager.Events(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if events == nil {
		events = []jobs.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Project handlers ---

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	entries := s.settings.ListProjects()

	resp := make([]ProjectResponse, 0, len(entries))
	for _, entry := range entries {
		count := 0
		if cfg, err := config.LoadProjectDir(entry.Path); err == nil {
			count = len(cfg.Tools())
		}
		resp = append(resp, ProjectResponse{
			Name:       entry.Name,
			Path:       entry.Path,
			ToolsCount: count,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	projectPath, err := s.settings.ProjectPath(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	cfg, err := config.LoadProjectDir(projectPath)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	scripts := make([]string, 0, len(cfg.Scripts))
	for script := range cfg.Scripts {
		scripts = append(scripts, script)
	}
	sort.Strings(scripts)

	detail := ProjectDetailResponse{
		Name:      cfg.Name,
		Version:   cfg.Version,
		Path:      projectPath,
		BaseImage: cfg.BaseImage,
		Scripts:   scripts,
		Tools:     len(cfg.Tools()),
	}
	if cfg.Runtime != nil {
		detail.GPU = cfg.Runtime.GPU
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleProjectTools(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	projectPath, err := s.settings.ProjectPath(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	cfg, err := config.LoadProjectDir(projectPath)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	tools := cfg.Tools()
	resp := make([]ToolResponse, 0, len(tools))
	for i := range tools {
		resp = append(resp, toolToResponse(&tools[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
