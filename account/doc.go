// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package account 管理生成账号及其凭证的运行期视图。

# 概述

账号定义来自只读的 Store（YAML 文件或数据库），每次编排运行都会基于这些
定义构建一个新的 Pool。凭证隔离状态只存在于本次运行的 TokenRing 中，
不会写回存储，因此并发或先后执行的多次运行互不干扰。

# 核心类型

  - Account / Token — 账号与凭证定义
  - TokenRing       — 单账号的有序凭证环，支持隔离与轮转
  - Pool            — 运行期账号池，维护活跃集合与耗尽记录
  - Store           — FileStore（YAML）、SQLStore（GORM）、StaticStore

# 主要能力

  - 确定性选择：Next 始终按配置顺序返回第一个可用凭证
  - 过载分流：Rotate 在未隔离凭证间轮转
  - 账号耗尽：最后一个凭证被隔离时账号自动移出活跃集合，并保留在 Exhausted 报告中
  - 数据库驱动：sqlite、postgres、mysql
*/
package account
