// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package metrics 提供基于 Prometheus 的编排器指标采集能力。

# 概述

Collector 使用 promauto 注册指标，按 namespace 隔离。nil Collector
的全部记录方法都是空操作，组件在未启用指标时无需额外判断。

# 主要能力

  - 远端 API：调用次数与耗时，按 endpoint/status 分组
  - 提交：按失败类型统计尝试次数、凭证隔离、账号耗尽、退避时长
  - 轮询：待完成任务数、终态计数、每账号熔断器状态
  - 下载与运行：下载结果与字节数、场景结果、运行耗时与并发运行数
*/
package metrics
