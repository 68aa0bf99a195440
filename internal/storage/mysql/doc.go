// Package mysql 提供金库事件的持久化归档：本地开发用 JSON 日志文件,
// 生产环境落 MySQL。归档是审计与对账的数据源，与引擎内存状态互不依赖。
package mysql
