// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package request 负责提示规范化与提交请求体构建。

# 概述

所有可接受的提示形式（字符串、YAML/JSON map、ScenePrompt）在边界处通过
Normalize 一次性转换为 types.ScenePrompt，之后的流水线只处理规范形式。
Builder 是远端字段名唯一出现的地方，字段路径由 FieldPaths 配置，
通过 sjson 按路径写入，上游接口字段变更只需修改配置。

# 核心类型

  - Sanitizer  — 外部内容过滤钩子，返回改写后的文本与额外负面提示
  - FieldPaths — 请求体字段路径（含图片引用字段）
  - Builder    — Build(prompt, model, envelope) 生成请求体

# 主要能力

  - 负面提示合并：调用方 + 过滤钩子 + 格式卫生项，大小写不敏感去重
  - 模型链：提示自带链为空时回退到默认链
  - 多份拷贝：每份拷贝一个独立的 sceneId
*/
package request
