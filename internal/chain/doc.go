// Package chain 封装对 EVM 链的全部访问：余额与快照查询、出金交易的
// 签名与广播、分档 gas 报价以及入账事件订阅。上层只依赖这里暴露的
// 接口，不直接接触 go-ethereum 客户端。
package chain
