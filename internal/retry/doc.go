// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
包 retry 提供指数退避的重试策略与重试器。

# 核心类型

  - RetryPolicy — 初始延迟、倍增因子、最大延迟与抖动配置，Delay(attempt) 计算退避时间
  - Retryer     — Do / DoWithResult 的统一重试接口
  - Sleeper     — 可替换的等待函数，便于测试记录退避序列
  - Transfer    — 下载专用：每次重试前把临时文件回绕清空，再写入

submit 包使用 OverloadRetryPolicy 的延迟序列处理 503/429；download 包通过
Transfer 对网络错误做有限重试。
*/
package retry
