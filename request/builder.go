package request

import (
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/BaSui01/sceneflow/types"
)

// Sanitizer rewrites prompt text and may contribute extra negatives.
type Sanitizer func(text string) (string, []string)

// IdentitySanitizer leaves text untouched.
func IdentitySanitizer(text string) (string, []string) {
	return text, nil
}

// HygieneNegatives are appended to every request.
var HygieneNegatives = []string{"on-screen text", "subtitles", "watermark"}

// FieldPaths holds every wire field name of the submit body as an sjson path.
// Item paths are relative to one entry of Requests.
type FieldPaths struct {
	ProjectID      string `yaml:"project_id" env:"PROJECT_ID"`
	SessionID      string `yaml:"session_id" env:"SESSION_ID"`
	Requests       string `yaml:"requests" env:"REQUESTS"`
	Prompt         string `yaml:"prompt" env:"PROMPT"`
	NegativePrompt string `yaml:"negative_prompt" env:"NEGATIVE_PROMPT"`
	Image          string `yaml:"image" env:"IMAGE"`
	Model          string `yaml:"model" env:"MODEL"`
	AspectRatio    string `yaml:"aspect_ratio" env:"ASPECT_RATIO"`
	Seed           string `yaml:"seed" env:"SEED"`
	SceneID        string `yaml:"scene_id" env:"SCENE_ID"`
}

// DefaultFieldPaths 返回当前远端接口使用的字段路径
func DefaultFieldPaths() FieldPaths {
	return FieldPaths{
		ProjectID:      "clientContext.projectId",
		SessionID:      "clientContext.sessionId",
		Requests:       "requests",
		Prompt:         "textInput.prompt",
		NegativePrompt: "textInput.negativePrompt",
		Image:          "startImage.mediaId",
		Model:          "videoModelKey",
		AspectRatio:    "aspectRatio",
		Seed:           "seed",
		SceneID:        "metadata.sceneId",
	}
}

// Options 构建器配置
type Options struct {
	Fields             FieldPaths
	DefaultModels      []string
	DefaultAspectRatio string
	// AspectRatios maps caller ratios ("16:9") to wire enum values. Unknown ratios pass through.
	AspectRatios map[string]string
	Sanitizer    Sanitizer
	// MaxCopies caps explicit copies per submit call.
	MaxCopies int
}

// DefaultOptions 返回默认构建器配置
func DefaultOptions() Options {
	return Options{
		Fields:             DefaultFieldPaths(),
		DefaultModels:      []string{"veo_3_1_t2v_fast", "veo_3_1_t2v"},
		DefaultAspectRatio: "16:9",
		AspectRatios: map[string]string{
			"16:9": "VIDEO_ASPECT_RATIO_LANDSCAPE",
			"9:16": "VIDEO_ASPECT_RATIO_PORTRAIT",
			"1:1":  "VIDEO_ASPECT_RATIO_SQUARE",
		},
		Sanitizer: IdentitySanitizer,
		MaxCopies: 4,
	}
}

// Envelope carries the per-call context of a submit body.
type Envelope struct {
	ProjectID string
	SessionID string
	// SceneIDs holds one locally generated id per copy, in copy order.
	SceneIDs []string
}

// Builder is the single place where ScenePrompts become wire bodies.
type Builder struct {
	opts Options
}

// NewBuilder 创建请求构建器，未设置的选项使用默认值
func NewBuilder(opts Options) *Builder {
	def := DefaultOptions()
	if opts.Fields == (FieldPaths{}) {
		opts.Fields = def.Fields
	}
	if opts.Fields.Requests == "" {
		opts.Fields.Requests = def.Fields.Requests
	}
	if len(opts.DefaultModels) == 0 {
		opts.DefaultModels = def.DefaultModels
	}
	if opts.DefaultAspectRatio == "" {
		opts.DefaultAspectRatio = def.DefaultAspectRatio
	}
	if opts.AspectRatios == nil {
		opts.AspectRatios = def.AspectRatios
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = IdentitySanitizer
	}
	if opts.MaxCopies <= 0 {
		opts.MaxCopies = def.MaxCopies
	}
	return &Builder{opts: opts}
}

// ModelChain returns the prompt's model chain or the configured default chain.
func (b *Builder) ModelChain(p types.ScenePrompt) []string {
	if len(p.ModelChain) > 0 {
		return p.ModelChain
	}
	return b.opts.DefaultModels
}

// Copies returns how many copies one submit call carries for the prompt.
func (b *Builder) Copies(p types.ScenePrompt) int {
	n := p.CopyCount()
	if n > b.opts.MaxCopies {
		return b.opts.MaxCopies
	}
	return n
}

// Prepare runs the sanitize hook and merges negatives.
func (b *Builder) Prepare(p types.ScenePrompt) (string, []string) {
	text, extra := b.opts.Sanitizer(p.Text)
	return text, MergeNegatives(p.Negatives, extra, HygieneNegatives)
}

// Build renders the submit body for one prompt and model. One request item is
// emitted per entry of env.SceneIDs.
func (b *Builder) Build(p types.ScenePrompt, model string, env Envelope) ([]byte, error) {
	if model == "" {
		return nil, fmt.Errorf("scene %d: model is required", p.SceneIndex)
	}
	if len(env.SceneIDs) == 0 {
		return nil, fmt.Errorf("scene %d: at least one scene id is required", p.SceneIndex)
	}

	f := b.opts.Fields
	text, negatives := b.Prepare(p)

	body := []byte(`{}`)
	var err error
	if body, err = setIf(body, f.ProjectID, env.ProjectID); err != nil {
		return nil, err
	}
	if body, err = setIf(body, f.SessionID, env.SessionID); err != nil {
		return nil, err
	}
	if body, err = sjson.SetRawBytes(body, f.Requests, []byte(`[]`)); err != nil {
		return nil, fmt.Errorf("set %s: %w", f.Requests, err)
	}

	for k, sceneID := range env.SceneIDs {
		item := []byte(`{}`)
		if item, err = setIf(item, f.Prompt, text); err != nil {
			return nil, err
		}
		if len(negatives) > 0 {
			if item, err = setIf(item, f.NegativePrompt, strings.Join(negatives, ", ")); err != nil {
				return nil, err
			}
		}
		if p.ImageRef != "" {
			if item, err = setIf(item, f.Image, p.ImageRef); err != nil {
				return nil, err
			}
		}
		if item, err = setIf(item, f.Model, model); err != nil {
			return nil, err
		}
		if item, err = setIf(item, f.AspectRatio, b.aspectRatio(p.AspectRatio)); err != nil {
			return nil, err
		}
		if p.Seed != 0 && f.Seed != "" {
			// 多份拷贝使用相邻种子，保证结果互不相同
			if item, err = sjson.SetBytes(item, f.Seed, p.Seed+int64(k)); err != nil {
				return nil, fmt.Errorf("set %s: %w", f.Seed, err)
			}
		}
		if item, err = setIf(item, f.SceneID, sceneID); err != nil {
			return nil, err
		}
		if body, err = sjson.SetRawBytes(body, f.Requests+".-1", item); err != nil {
			return nil, fmt.Errorf("append request item: %w", err)
		}
	}
	return body, nil
}

func (b *Builder) aspectRatio(r string) string {
	if r == "" {
		r = b.opts.DefaultAspectRatio
	}
	if wire, ok := b.opts.AspectRatios[r]; ok {
		return wire
	}
	return r
}

// setIf sets value at path; an empty path disables the field.
func setIf(body []byte, path, value string) ([]byte, error) {
	if path == "" || value == "" {
		return body, nil
	}
	out, err := sjson.SetBytes(body, path, value)
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", path, err)
	}
	return out, nil
}

// MergeNegatives concatenates negative lists, dropping case-insensitive duplicates
// and keeping first-seen order.
func MergeNegatives(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, n := range list {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			key := strings.ToLower(n)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
