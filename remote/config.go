package remote

import "time"

// ResponsePaths locates fields in remote responses as gjson paths.
type ResponsePaths struct {
	Operations    string `yaml:"operations" env:"OPERATIONS"`
	OperationName string `yaml:"operation_name" env:"OPERATION_NAME"`
	SceneID       string `yaml:"scene_id" env:"SCENE_ID"`
	Status        string `yaml:"status" env:"STATUS"`
	ResultURL     string `yaml:"result_url" env:"RESULT_URL"`
	ErrorMessage  string `yaml:"error_message" env:"ERROR_MESSAGE"`
	// 状态值后缀，其余状态一律视为进行中
	SuccessSuffix string `yaml:"success_suffix" env:"SUCCESS_SUFFIX"`
	FailureSuffix string `yaml:"failure_suffix" env:"FAILURE_SUFFIX"`
}

// Config 远端生成 API 配置
type Config struct {
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// SubmitPath may contain {projectId}.
	SubmitPath     string        `yaml:"submit_path" env:"SUBMIT_PATH"`
	StatusPath     string        `yaml:"status_path" env:"STATUS_PATH"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	UserAgent      string        `yaml:"user_agent" env:"USER_AGENT"`
	Response       ResponsePaths `yaml:"response" env:"RESPONSE"`
}

// DefaultResponsePaths 返回默认响应字段路径
func DefaultResponsePaths() ResponsePaths {
	return ResponsePaths{
		Operations:    "operations",
		OperationName: "operation.name",
		SceneID:       "sceneId",
		Status:        "status",
		ResultURL:     "operation.metadata.video.url",
		ErrorMessage:  "operation.error.message",
		SuccessSuffix: "_SUCCESSFUL",
		FailureSuffix: "_FAILED",
	}
}

// DefaultConfig 返回默认远端配置
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://aisandbox-pa.googleapis.com",
		SubmitPath:     "/v1/projects/{projectId}/video:batchGenerate",
		StatusPath:     "/v1/video:batchCheckStatus",
		RequestTimeout: 120 * time.Second,
		UserAgent:      "sceneflow",
		Response:       DefaultResponsePaths(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.SubmitPath == "" {
		c.SubmitPath = def.SubmitPath
	}
	if c.StatusPath == "" {
		c.StatusPath = def.StatusPath
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if c.Response == (ResponsePaths{}) {
		c.Response = def.Response
	}
	return c
}
