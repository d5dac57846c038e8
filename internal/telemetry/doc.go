// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package telemetry 定义 SceneFlow 运行的 OpenTelemetry 词汇并负责 SDK 初始化。

# 概述

span 名称（sceneflow.run / sceneflow.submit）、下载事件与 sceneflow.* 属性键
集中定义在这里，编排器只引用这些常量。Init 根据 Config 创建 OTLP/gRPC 的
TracerProvider 与 MeterProvider 并注册为全局实现；禁用时保持 noop。

# 主要能力

  - 资源属性：service.*，以及本次运行的账号来源、账号数、场景数、输出目录和模型链
  - 采样：ParentBased + TraceIDRatioBased
  - RunRecorder：运行耗时直方图（Views 指定分桶）与按结果计数的场景数
  - Providers.Shutdown 刷新并关闭导出器，nil 安全
*/
package telemetry
