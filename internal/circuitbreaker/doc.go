// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
包 circuitbreaker 提供 Closed / Open / HalfOpen 三态熔断器。

轮询循环为每个账号维护一个熔断器（Registry），状态查询接口连续失败的账号
会被暂时跳过，其他账号的轮询不受影响。鉴权、请求格式类错误属于调用方问题，
不计入熔断失败次数。
*/
package circuitbreaker
