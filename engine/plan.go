// Package engine translates tool invocations into container execution plans.
package engine

// Mount binds a host path into the container. Host is always an absolute,
// existing path by the time a plan is built.
type Mount struct {
	Host      string `json:"host"`
	Container string `json:"container"`
	ReadOnly  bool   `json:"read_only"`
}

// Plan is a fully resolved, immutable description of a container invocation.
// Whichever component executes the plan owns it exclusively.
type Plan struct {
	Image      string            `json:"image"`
	Command    []string          `json:"command"`
	Env        map[string]string `json:"env,omitempty"`
	Mounts     []Mount           `json:"mounts,omitempty"`
	Memory     string            `json:"memory,omitempty"`
	CPUs       float64           `json:"cpus,omitempty"`
	ShmSize    string            `json:"shm_size,omitempty"`
	WorkDir    string            `json:"workdir,omitempty"`
	GPUDevices []string          `json:"gpu_devices,omitempty"`
	TTY        bool              `json:"tty"`
	AutoRemove bool              `json:"auto_remove"`
	Detach     bool              `json:"detach"`
}

// FileInfo describes one file found under a job's output directory.
type FileInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// RunResult is the structured result emitted by the synchronous CLI path
// when running in JSON mode.
type RunResult struct {
	Status    string     `json:"status"`
	ExitCode  int        `json:"exit_code"`
	OutputDir string     `json:"output_dir,omitempty"`
	Files     []FileInfo `json:"files"`
	Error     string     `json:"error,omitempty"`
}
