// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
包 database 管理 SQL 凭证存储的 GORM 连接池。

# 概述

PoolManager 封装 GORM 与 database/sql 的连接池配置。凭证在启动时读取一次，
因此默认连接数很小；WaitReady 在数据库刚启动时按退避策略重试探活。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、WaitReady()、Close()
  - PoolConfig：最大空闲/打开连接数与连接生命周期，零值沿用驱动默认
  - PoolStats：友好格式的连接池统计信息
*/
package database
