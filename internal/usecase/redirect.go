package usecase

import (
	"fmt"
	"net/url"
	"strings"
)

// RedirectPolicy keeps redirect targets on the site. Relative paths pass; absolute URLs pass
// only for the site host or an explicitly allowed host.
type RedirectPolicy struct {
	site    *url.URL
	allowed map[string]struct{}
}

// NewRedirectPolicy builds a policy for the site URL.
func NewRedirectPolicy(siteURL string, allowedHosts []string) (*RedirectPolicy, error) {
	site, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil || site.Host == "" {
		return nil, fmt.Errorf("invalid site url %q", siteURL)
	}

	allowed := map[string]struct{}{strings.ToLower(site.Hostname()): {}}
	for _, host := range allowedHosts {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			allowed[host] = struct{}{}
		}
	}

	return &RedirectPolicy{site: site, allowed: allowed}, nil
}

// Sanitize returns raw when it is a safe destination, fallback otherwise.
func (p *RedirectPolicy) Sanitize(raw, fallback string) string {
	if p.Safe(raw) {
		return strings.TrimSpace(raw)
	}
	return fallback
}

// Safe reports whether raw may be used as a redirect target.
func (p *RedirectPolicy) Safe(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	// Browsers treat backslashes as slashes, so "/\evil.example" would leave the site.
	if strings.ContainsAny(raw, "\\\x00\r\n\t") {
		return false
	}

	target, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if target.Scheme == "" && target.Host == "" {
		return !strings.HasPrefix(raw, "//")
	}

	if target.Scheme != "http" && target.Scheme != "https" {
		return false
	}
	if target.User != nil {
		return false
	}
	_, ok := p.allowed[strings.ToLower(target.Hostname())]
	return ok
}

// Absolute resolves a site-relative path against the site URL.
func (p *RedirectPolicy) Absolute(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return p.site.String()
	}
	return p.site.ResolveReference(ref).String()
}

// forceHTTPS upgrades an http URL on the site to https.
func forceHTTPS(raw string) string {
	if strings.HasPrefix(raw, "http://") {
		return "https://" + strings.TrimPrefix(raw, "http://")
	}
	return raw
}
