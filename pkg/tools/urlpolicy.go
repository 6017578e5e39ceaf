package tools

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLPolicy restricts the URLs network tools may reach
type URLPolicy struct {
	AllowLocalhost bool     `json:"allow_localhost" mapstructure:"allow_localhost"`
	AllowedDomains []string `json:"allowed_domains" mapstructure:"allowed_domains"`
	BlockedDomains []string `json:"blocked_domains" mapstructure:"blocked_domains"`
}

// Validate parses raw and checks it against the policy
func (p URLPolicy) Validate(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %s", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme %q is not allowed", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("URL has no host: %s", raw)
	}

	if !p.AllowLocalhost && isLocalhost(host) {
		return nil, fmt.Errorf("localhost URLs are not allowed")
	}
	for _, blocked := range p.BlockedDomains {
		if domainMatches(host, blocked) {
			return nil, fmt.Errorf("domain is blocked: %s", host)
		}
	}
	if len(p.AllowedDomains) > 0 {
		allowed := false
		for _, d := range p.AllowedDomains {
			if domainMatches(host, d) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("domain not in allowed list: %s", host)
		}
	}
	return u, nil
}

func isLocalhost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

// domainMatches matches host against domain or any of its subdomains
func domainMatches(host, domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "*."))
	return host == domain || strings.HasSuffix(host, "."+domain)
}
