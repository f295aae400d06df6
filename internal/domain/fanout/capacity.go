package fanout

import (
	"fmt"
	"strings"
)

// CapacityPolicy maps target ids to a maximum number of items per request.
// Override keys ending in "*" match by prefix (longest prefix wins); other keys match exactly.
type CapacityPolicy struct {
	defaultSize int
	exact       map[string]int
	prefixes    []prefixRule
}

type prefixRule struct {
	prefix string
	size   int
}

// NewCapacityPolicy validates and builds a policy.
func NewCapacityPolicy(defaultSize int, overrides map[string]int) (*CapacityPolicy, error) {
	if defaultSize <= 0 {
		return nil, fmt.Errorf("default %w", ErrInvalidCapacity)
	}
	p := &CapacityPolicy{defaultSize: defaultSize, exact: make(map[string]int)}
	for key, size := range overrides {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if size <= 0 {
			return nil, fmt.Errorf("override %q: %w", key, ErrInvalidCapacity)
		}
		if prefix, ok := strings.CutSuffix(key, "*"); ok {
			p.prefixes = append(p.prefixes, prefixRule{prefix: prefix, size: size})
			continue
		}
		p.exact[key] = size
	}
	return p, nil
}

// Default returns the capacity used when no override matches.
func (p *CapacityPolicy) Default() int {
	return p.defaultSize
}

// CapacityOf implements CapacityFunc.
func (p *CapacityPolicy) CapacityOf(targetID string) int {
	if size, ok := p.exact[targetID]; ok {
		return size
	}
	best, size := -1, p.defaultSize
	for _, rule := range p.prefixes {
		if strings.HasPrefix(targetID, rule.prefix) && len(rule.prefix) > best {
			best, size = len(rule.prefix), rule.size
		}
	}
	return size
}
