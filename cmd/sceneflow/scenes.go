package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/sceneflow/request"
	"github.com/BaSui01/sceneflow/types"
)

// loadScenes reads a scene list file. The document is either a sequence of prompts
// or a mapping with a "scenes" sequence. JSON is accepted as YAML.
func loadScenes(path string) ([]types.ScenePrompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenes file: %w", err)
	}
	return parseScenes(data)
}

func parseScenes(data []byte) ([]types.ScenePrompt, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse scenes file: %w", err)
	}

	var raws []any
	switch v := doc.(type) {
	case nil:
		return []types.ScenePrompt{}, nil
	case []any:
		raws = v
	case map[string]any:
		list, ok := v["scenes"].([]any)
		if !ok {
			return nil, fmt.Errorf("parse scenes file: missing \"scenes\" list")
		}
		raws = list
	default:
		return nil, fmt.Errorf("parse scenes file: unexpected document type %T", doc)
	}

	return request.NormalizeAll(raws)
}
