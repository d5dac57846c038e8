// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 SceneFlow 编排器的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 account、request、submit、
tracker、download、orchestrator 等上层模块提供统一的数据模型与错误码。

# 核心类型

  - ScenePrompt       — 规范化后的场景提示（SceneIndex 为唯一身份）
  - Operation         — 远端异步任务句柄（Pending → Succeeded|Failed，单调）
  - DownloadTask      — 单个产物下载任务
  - JobBatchResult    — 每个场景的最终结果
  - Phase / ProgressFunc — 进度回调
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Attempts

# 主要能力

  - 错误工具链：AsError / CodeOf / IsErrorCode / IsRetryable
  - 文件命名辅助：SceneLabel
*/
package types
