package relay

import (
	"context"
	"sync"
)

// MemoryPublisher 把信封留在内存里，用于测试与单机部署。
type MemoryPublisher struct {
	mu      sync.Mutex
	streams map[string][]Envelope
}

// NewMemoryPublisher 创建内存发布器。
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{streams: make(map[string][]Envelope)}
}

// Publish 实现 Publisher。
func (p *MemoryPublisher) Publish(_ context.Context, stream string, envelope Envelope) error {
	p.mu.Lock()
	p.streams[stream] = append(p.streams[stream], envelope)
	p.mu.Unlock()
	return nil
}

// Stream 返回指定流已积累的信封副本。
func (p *MemoryPublisher) Stream(stream string) []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Envelope(nil), p.streams[stream]...)
}

// Close 实现 Publisher。
func (p *MemoryPublisher) Close() error { return nil }
