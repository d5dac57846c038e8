// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 SceneFlow 测试的共享工具和辅助函数。

# 概述

testutil 为各包的单元测试提供统一的上下文、账号池与异步断言辅助，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 账号辅助: NewPool 构建账号池，WriteAccountsFile 生成 FileStore 格式的 YAML
  - 异步断言: AssertEventuallyTrue / WaitFor / WaitForChannel
  - 文件断言: AssertFileContains

# 子包

  - testutil/mocks: FakeAPI（可编排的远端生成 API）与 NewServer（httptest 包装），
    支持错误序列、提交延迟与进行中轮询次数注入
  - testutil/fixtures: 场景与账号样例

# 使用示例

	api := mocks.NewFakeAPI().WithPendingPolls(2)
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))
	results, err := orchestrator.NewDistributor(api, logger).Run(testutil.TestContext(t), fixtures.Scenes(3), pool, opts)
*/
package testutil
