package types

import "fmt"

// ScenePrompt is one canonical, immutable generation unit.
// SceneIndex is caller-assigned and is the only identity used for results and file names.
type ScenePrompt struct {
	SceneIndex  int      `json:"scene_index" yaml:"scene_index"`
	Text        string   `json:"text" yaml:"text"`
	Negatives   []string `json:"negatives,omitempty" yaml:"negatives,omitempty"`
	AspectRatio string   `json:"aspect_ratio,omitempty" yaml:"aspect_ratio,omitempty"`
	Seed        int64    `json:"seed,omitempty" yaml:"seed,omitempty"`
	ModelChain  []string `json:"model_chain,omitempty" yaml:"model_chain,omitempty"`
	ImageRef    string   `json:"image_ref,omitempty" yaml:"image_ref,omitempty"`
	Copies      int      `json:"copies,omitempty" yaml:"copies,omitempty"`
}

// CopyCount returns the number of explicit copies requested (at least 1).
func (p ScenePrompt) CopyCount() int {
	if p.Copies < 1 {
		return 1
	}
	return p.Copies
}

// OperationStatus is the lifecycle state of a remote operation.
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationSucceeded OperationStatus = "succeeded"
	OperationFailed    OperationStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s OperationStatus) IsTerminal() bool {
	return s == OperationSucceeded || s == OperationFailed
}

// Operation is the remote API's async job handle for one submitted copy of a scene.
type Operation struct {
	OperationID string          `json:"operation_id"`
	SceneID     string          `json:"scene_id"`
	SceneIndex  int             `json:"scene_index"`
	CopyIndex   int             `json:"copy_index"`
	AccountID   string          `json:"account_id"`
	AuthToken   string          `json:"-"`
	Model       string          `json:"model,omitempty"`
	Status      OperationStatus `json:"status"`
	ResultURL   string          `json:"result_url,omitempty"`
	Err         error           `json:"-"`
}

// DownloadTask describes one artifact fetch.
type DownloadTask struct {
	SceneIndex  int    `json:"scene_index"`
	CopyIndex   int    `json:"copy_index"`
	OperationID string `json:"operation_id"`
	URL         string `json:"url"`
	DestPath    string `json:"dest_path"`
	AuthToken   string `json:"-"`
}

// JobBatchResult is the final per-scene outcome.
type JobBatchResult struct {
	SceneIndex    int      `json:"scene_index"`
	ArtifactPaths []string `json:"artifact_paths,omitempty"`
	Err           error    `json:"-"`
}

// Succeeded reports whether the scene produced at least one artifact and no error.
func (r JobBatchResult) Succeeded() bool {
	return r.Err == nil && len(r.ArtifactPaths) > 0
}

// Detail returns a human-readable failure reason.
func (r JobBatchResult) Detail() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Phase is a progress milestone for one scene.
type Phase string

const (
	PhaseSubmitted   Phase = "Submitted"
	PhasePolling     Phase = "Polling"
	PhaseDownloading Phase = "Downloading"
	PhaseDone        Phase = "Done"
	PhaseFailed      Phase = "Failed"
)

// ProgressFunc receives progress notifications. It may be called from multiple goroutines.
type ProgressFunc func(sceneIndex int, phase Phase, detail string)

// SceneLabel formats a scene index for logs and file names.
func SceneLabel(index int) string {
	return fmt.Sprintf("scene_%03d", index)
}
