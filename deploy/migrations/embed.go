// Package migrations 内嵌金库事件归档所需的 SQL 迁移文件。
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
