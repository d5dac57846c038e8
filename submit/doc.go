// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package submit 实现单个场景的提交状态机。

# 概述

每次提交尝试都返回一个带标签的 Attempt，状态机只根据 Kind 决定下一步，
从不解析错误文本：

  - KindAuth       — 隔离当前凭证，换下一个凭证，模型不变；凭证耗尽时返回 ALL_TOKENS_INVALID
  - KindBadRequest — 切换到模型链中的下一个模型，凭证不变；模型链耗尽即永久失败
  - KindOverload   — 指数退避（10s 起，×2，封顶 60s），每次重试轮换凭证，预算 5 次
  - KindNetwork    — 有限重试（默认 2 次）后永久失败

可恢复事件各记录一次 WARN 日志；终态失败只通过返回值上报，由调用方统一记录。
*/
package submit
