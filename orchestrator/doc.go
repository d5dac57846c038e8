// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package orchestrator 提供场景分发协调器，把一批场景分摊到多个账号上执行。

# 概述

Distributor.Run 按输入顺序将场景轮转分配给账号池中的可用账号，每个账号
一个 worker（errgroup），账号内顺序提交。提交成功的操作登记到 tracker，
由唯一的轮询循环推进状态，成功的操作交给下载调度器落盘。

# 核心类型

  - Distributor — 场景分发协调器
  - Options     — 单次运行参数（输出目录、并发下载数、轮询间隔、全局超时等）
  - Summary     — 运行结束报告，列出成功与失败的场景及原因

# 主要能力

  - 工作窃取：账号凭证全部失效时，其当前与排队中的场景进入共享孤儿队列，
    空闲的健康 worker 通过条件变量被唤醒后接手
  - 所有账号耗尽时剩余场景以 ALL_ACCOUNTS_EXHAUSTED 失败，已提交的操作
    仍会继续轮询与下载
  - 无可用账号时立即返回，不发起任何网络调用
  - 每个输入场景恰好产出一个结果，按 sceneIndex 排序
  - 进度回调：Submitted / Polling / Downloading / Done / Failed
  - 运行与提交链路的 OpenTelemetry span
*/
package orchestrator
