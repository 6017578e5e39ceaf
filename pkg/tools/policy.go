package tools

import "strings"

// Policy limits which tools may be invoked. Deny overrides allow; an empty
// allow list means every tool is allowed.
type Policy struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// Allows reports whether the policy permits a tool name
func (p *Policy) Allows(name string) bool {
	if p == nil {
		return true
	}
	key := normalizeName(name)

	for _, denied := range p.Deny {
		if matchName(denied, key) {
			return false
		}
	}

	if len(p.Allow) == 0 {
		return true
	}
	for _, allowed := range p.Allow {
		if matchName(allowed, key) {
			return true
		}
	}
	return false
}

// matchName supports "*" and "prefix.*" patterns
func matchName(pattern, key string) bool {
	pattern = normalizeName(pattern)
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == key
	}
}
