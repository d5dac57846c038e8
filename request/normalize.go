package request

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/BaSui01/sceneflow/types"
)

// Normalize converts one accepted prompt representation into the canonical ScenePrompt.
// Accepted forms: a plain string, a decoded YAML/JSON map, or a ScenePrompt value.
// index only applies to the string form and to maps without scene_index; a ScenePrompt
// keeps the index it carries, including 0.
func Normalize(index int, raw any) (types.ScenePrompt, error) {
	var p types.ScenePrompt

	switch v := raw.(type) {
	case string:
		p = types.ScenePrompt{SceneIndex: index, Text: v}
	case types.ScenePrompt:
		p = v
		p.Negatives = append([]string(nil), v.Negatives...)
		p.ModelChain = append([]string(nil), v.ModelChain...)
	case *types.ScenePrompt:
		if v == nil {
			return types.ScenePrompt{}, fmt.Errorf("scene %d: nil prompt", index)
		}
		return Normalize(index, *v)
	case map[string]any:
		var err error
		p, err = fromMap(index, v)
		if err != nil {
			return types.ScenePrompt{}, err
		}
	default:
		return types.ScenePrompt{}, fmt.Errorf("scene %d: unsupported prompt type %T", index, raw)
	}

	p.Text = strings.TrimSpace(p.Text)
	if p.Text == "" {
		return types.ScenePrompt{}, fmt.Errorf("scene %d: prompt text is empty", p.SceneIndex)
	}
	if p.SceneIndex < 0 {
		return types.ScenePrompt{}, fmt.Errorf("scene %d: scene index must not be negative", p.SceneIndex)
	}
	p.Negatives = cleanList(p.Negatives)
	p.ModelChain = cleanList(p.ModelChain)
	if p.Copies < 0 {
		p.Copies = 0
	}
	return p, nil
}

// NormalizeAll normalizes a scene list. Strings and maps without an explicit index get
// their 1-based position. Duplicate scene indices are rejected.
func NormalizeAll(raws []any) ([]types.ScenePrompt, error) {
	out := make([]types.ScenePrompt, 0, len(raws))
	seen := make(map[int]struct{}, len(raws))
	for i, raw := range raws {
		p, err := Normalize(i+1, raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p.SceneIndex]; dup {
			return nil, fmt.Errorf("duplicate scene index %d", p.SceneIndex)
		}
		seen[p.SceneIndex] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func fromMap(index int, m map[string]any) (types.ScenePrompt, error) {
	p := types.ScenePrompt{SceneIndex: index}

	if v, ok := first(m, "scene_index", "index"); ok {
		n, err := toInt64(v)
		if err != nil {
			return p, fmt.Errorf("scene %d: scene_index: %w", index, err)
		}
		p.SceneIndex = int(n)
	}
	if v, ok := first(m, "prompt", "text"); ok {
		p.Text = fmt.Sprint(v)
	}
	if v, ok := first(m, "negatives", "negative", "negative_prompt"); ok {
		p.Negatives = toStrings(v)
	}
	if v, ok := first(m, "aspect_ratio", "aspectRatio"); ok {
		p.AspectRatio = fmt.Sprint(v)
	}
	if v, ok := m["seed"]; ok {
		n, err := toInt64(v)
		if err != nil {
			return p, fmt.Errorf("scene %d: seed: %w", index, err)
		}
		p.Seed = n
	}
	if v, ok := first(m, "models", "model_chain", "model"); ok {
		p.ModelChain = toStrings(v)
	}
	if v, ok := first(m, "image", "image_ref"); ok {
		p.ImageRef = strings.TrimSpace(fmt.Sprint(v))
	}
	if v, ok := m["copies"]; ok {
		n, err := toInt64(v)
		if err != nil {
			return p, fmt.Errorf("scene %d: copies: %w", index, err)
		}
		p.Copies = int(n)
	}
	return p, nil
}

func first(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case uint64:
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("not an integer: %v", t)
		}
		return int64(t), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported number type %T", v)
	}
}

func cleanList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
