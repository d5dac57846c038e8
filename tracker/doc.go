// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package tracker 维护远端任务状态并驱动唯一的轮询循环。

# 概述

Tracker 是一次运行中唯一被多个并发参与者访问的状态：提交协程只调用
Register 插入新任务，状态变更只由 Loop 通过 Apply 完成。Apply 保证
Pending → Succeeded|Failed 单调迁移，并且只返回本次新进入终态的任务，
因此重复查询已成功的任务不会产生重复下载。

# 轮询循环

  - 每个 tick 按账号分组待完成任务，每账号每批（默认 16 个）一次状态查询
  - 不同账号的查询在同一 tick 内并发执行，结果统一在循环协程上应用
  - 每账号一个熔断器，查询持续失败的账号暂时跳过，不影响其他账号
  - 全局超时后剩余任务记为 TIMED_OUT；取消时记为 CANCELLED
  - 查询凭证优先使用账号当前可用凭证，否则回退到提交时使用的凭证
*/
package tracker
