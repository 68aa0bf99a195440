package relay

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"SennaVault/internal/wallet"
)

// RoutingPolicy 决定每类金库事件投递到哪个下游流。未命中的事件类别
// 落到默认流；默认流为空时直接丢弃。
type RoutingPolicy struct {
	DefaultStream string                 `yaml:"defaultStream"`
	Routes        map[wallet.Kind]string `yaml:"routes"`
	Drop          []wallet.Kind          `yaml:"drop"`
}

// LoadRoutingPolicy reads a YAML file into a RoutingPolicy.
func LoadRoutingPolicy(path string) (RoutingPolicy, error) {
	var policy RoutingPolicy
	if path == "" {
		return policy, errors.New("policy path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read routing policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return policy, fmt.Errorf("unmarshal routing policy: %w", err)
	}
	if policy.Routes == nil {
		policy.Routes = map[wallet.Kind]string{}
	}
	return policy, nil
}

// Validate ensures the routing policy is internally consistent.
func (p RoutingPolicy) Validate() error {
	for kind, stream := range p.Routes {
		if kind == "" {
			return errors.New("route kind cannot be empty")
		}
		if stream == "" {
			return fmt.Errorf("route for %s has an empty stream", kind)
		}
	}
	return nil
}

// StreamFor 返回某事件类别的目标流，第二个返回值表示是否投递。
func (p RoutingPolicy) StreamFor(kind wallet.Kind) (string, bool) {
	for _, dropped := range p.Drop {
		if dropped == kind {
			return "", false
		}
	}
	if stream, ok := p.Routes[kind]; ok {
		return stream, true
	}
	if p.DefaultStream != "" {
		return p.DefaultStream, true
	}
	return "", false
}
