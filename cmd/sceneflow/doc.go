// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 SceneFlow 命令行程序入口。

# 概述

cmd/sceneflow 读取场景列表与账号配置，驱动一次完整的批量视频生成：
提交、轮询、下载，最后输出运行汇总。任何场景失败时以非零状态退出。

# 主要能力

  - 子命令：run（执行批次）、accounts（列出账号）、migrate（初始化 SQL 凭证表）、version
  - 配置：YAML 文件 + SCENEFLOW_* 环境变量，加载后统一校验
  - 账号来源：YAML 文件或 GORM 数据库（sqlite / postgres / mysql）
  - 可选 Prometheus /metrics 端口与 OpenTelemetry 导出
  - 信号处理：SIGINT / SIGTERM 取消运行，已下载的文件保留
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
