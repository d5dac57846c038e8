// Package tlsutil 提供远端生成 API 与产物下载共用的 HTTP 传输层，
// TLS 1.2+，仅 AEAD 密码套件，支持 HTTPS_PROXY 等环境变量。
package tlsutil
