package proxy

import "github.com/geoengine/geoengine/config"

// SubmitJobRequest is the POST /api/jobs body sent by the GIS plugins.
type SubmitJobRequest struct {
	Project   string            `json:"project"`
	Tool      string            `json:"tool"`
	Inputs    map[string]string `json:"inputs,omitempty"`
	OutputDir string            `json:"output_dir,omitempty"`
}

// SubmitJobResponse acknowledges a queued job.
type SubmitJobResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// OutputResponse wraps a job's output file listing.
type OutputResponse struct {
	Files []FileResponse `json:"files"`
}

// FileResponse is one output file entry.
type FileResponse struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	MaxWorkers int    `json:"max_workers"`
}

// ProjectResponse is one entry in the project list.
type ProjectResponse struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	ToolsCount int    `json:"tools_count"`
}

// ProjectDetailResponse is a single project's summary.
type ProjectDetailResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version,omitempty"`
	Path      string   `json:"path"`
	BaseImage string   `json:"base_image,omitempty"`
	GPU       bool     `json:"gpu"`
	Scripts   []string `json:"scripts"`
	Tools     int      `json:"tools_count"`
}

// ToolResponse describes one declared tool.
type ToolResponse struct {
	Name        string              `json:"name"`
	Label       string              `json:"label,omitempty"`
	Description string              `json:"description,omitempty"`
	Inputs      []ParameterResponse `json:"inputs,omitempty"`
	Outputs     []ParameterResponse `json:"outputs,omitempty"`
}

// ParameterResponse describes one tool parameter.
type ParameterResponse struct {
	Name        string   `json:"name"`
	Label       string   `json:"label,omitempty"`
	MapTo       string   `json:"map_to,omitempty"`
	Type        string   `json:"type,omitempty"`
	Required    bool     `json:"required"`
	Default     any      `json:"default,omitempty"`
	Description string   `json:"description,omitempty"`
	Choices     []string `json:"choices,omitempty"`
}

// ErrorResponse is the structured error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toolToResponse(t *config.ToolDefinition) ToolResponse {
	return ToolResponse{
		Name:        t.Name,
		Label:       t.Label,
		Description: t.Description,
		Inputs:      paramsToResponse(t.Inputs),
		Outputs:     paramsToResponse(t.Outputs),
	}
}

func paramsToResponse(params []config.ParameterDefinition) []ParameterResponse {
	if len(params) == 0 {
		return nil
	}
	out := make([]ParameterResponse, 0, len(params))
	for _, p := range params {
		out = append(out, ParameterResponse{
			Name:        p.Name,
			Label:       p.Label,
			MapTo:       p.MapTo,
			Type:        p.Type,
			Required:    p.IsRequired(),
			Default:     p.Default,
			Description: p.Description,
			Choices:     p.Choices,
		})
	}
	return out
}
