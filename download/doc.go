// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package download 提供有界并发的产物下载调度。

# 概述

Dispatcher 维护固定数量的 worker 和一个非阻塞入队的缓冲队列，队列容量
按本次运行的任务总数设置，轮询循环入队时永不阻塞。同一 operationId
重复入队会被忽略。

# 主要能力

  - 目标路径只由 sceneIndex 和 copyIndex 决定（DestPath），与完成顺序无关
  - 先写入同目录临时文件再 rename，重跑某个场景只覆盖该场景的文件
  - 网络类错误有限重试（internal/retry），其余错误直接上报
  - 下载成功后调用外部钩子 (sceneIndex, path)
  - 取消后排空队列，未开始的任务以 CANCELLED 上报
*/
package download
