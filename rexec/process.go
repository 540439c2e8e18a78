// Package rexec runs the pipeline's external tools (the zero-shot labeler,
// the trainer) as managed subprocesses with their output captured.
package rexec

// ProcessConfig describes how to run one external process.
type ProcessConfig struct {
	Name    string   `json:"name"`
	Args    []string `json:"args"`
	CWD     string   `json:"cwd"`
	Env     []string `json:"env"`
	OneShot bool     `json:"one_shot"`
	Log     bool     `json:"log"`
	// LogPath, when set, additionally captures combined output to a
	// size-rotated file.
	LogPath string `json:"log_path"`
}
