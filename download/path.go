package download

import (
	"fmt"
	"path/filepath"
)

// DestPath derives the artifact path from the scene index and copy index only.
// Copy 0 is scene_NNN.mp4; copy k is scene_NNN_v<k+1>.mp4.
func DestPath(dir string, sceneIndex, copyIndex int) string {
	if copyIndex <= 0 {
		return filepath.Join(dir, fmt.Sprintf("scene_%03d.mp4", sceneIndex))
	}
	return filepath.Join(dir, fmt.Sprintf("scene_%03d_v%d.mp4", sceneIndex, copyIndex+1))
}
