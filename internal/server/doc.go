// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package server 提供命令行运行期间的指标 HTTP 服务。

# 概述

Manager 封装 net/http.Server，非阻塞启动，随运行结束优雅关闭。
MetricsHandler 通过 promhttp 暴露 Prometheus 指标，并提供 /healthz 探活。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道
  - Config：监听地址、读写超时与优雅关闭超时
*/
package server
