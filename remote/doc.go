// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package remote 是远端视频生成 API 的 HTTP 客户端。

# 概述

Client 实现 API 接口的三个调用：Submit（批量提交）、PollStatus（批量查询
状态）和 Download（带凭证下载产物）。响应字段通过可配置的 gjson 路径
读取，HTTP 状态码与传输错误统一映射为 types.Error。

# 错误映射

  - 401 / 403            → AUTHENTICATION
  - 429 / 500 / 502 / 503 → OVERLOADED（可重试）
  - 408 / 504 / 超时      → TIMEOUT（可重试）
  - 连接错误              → NETWORK（可重试）
  - 其余 4xx              → BAD_REQUEST
  - 响应无法解析          → BAD_RESPONSE
*/
package remote
