// Package wallet 实现共管金库的法定人数授权引擎：固定的所有者集合、
// 确认阈值、单笔与 24 小时滚动限额、自动化代理的小额直通通道，以及
// 带延时的所有权恢复流程。所有可变操作都在同一把互斥锁下串行执行，
// 时间判断依赖注入的时钟而非内部定时器。
package wallet
