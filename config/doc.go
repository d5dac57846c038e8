// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package config 提供 SceneFlow 的配置加载与校验。

# 概述

Loader 采用 Builder 模式，按 默认值 → YAML 文件 → 环境变量（SCENEFLOW_*）
→ 验证器 的顺序生成 Config。默认值直接取自各组件的 Default* 函数。

# 核心类型

  - Config             — 顶层配置：orchestrator / remote / accounts / log / metrics / telemetry
  - OrchestratorConfig — 输出目录、并发下载、轮询、全局超时、模型链、退避与熔断参数
  - RemoteConfig       — 远端地址、请求超时、请求体与响应字段路径
  - AccountsConfig     — 账号来源（YAML 文件或 SQL 数据库，含连接池上限）

# 主要能力

  - 嵌套结构体的环境变量覆盖，例如 SCENEFLOW_REMOTE_RESPONSE_STATUS
  - Validate 校验取值范围（请求超时 60s–180s、采样率 0–1 等）
  - RunOptions / RequestOptions 转换为编排器与请求构建器参数
*/
package config
