package app

import (
	"net"
	"net/url"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/config"
)

// originAllowList is built once from allowed_origins. Entries are exact
// hosts ("app.example.com", "localhost:5173"), any subdomain
// ("*.example.com") or any port ("localhost:*").
type originAllowList struct {
	hosts     map[string]struct{}
	domains   []string
	portHosts map[string]struct{}
}

func newOriginAllowList(patterns []string) *originAllowList {
	l := &originAllowList{hosts: map[string]struct{}{}, portHosts: map[string]struct{}{}}
	for _, p := range patterns {
		p = originHost(p)
		switch {
		case p == "":
		case strings.HasPrefix(p, "*."):
			l.domains = append(l.domains, p[1:])
		case strings.HasSuffix(p, ":*"):
			l.portHosts[strings.TrimSuffix(p, ":*")] = struct{}{}
		default:
			l.hosts[p] = struct{}{}
		}
	}
	return l
}

// Allows reports whether a browser Origin header value is on the list.
func (l *originAllowList) Allows(origin string) bool {
	host := originHost(origin)
	if _, ok := l.hosts[host]; ok {
		return true
	}
	name := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		name = h
		if _, ok := l.portHosts[h]; ok {
			return true
		}
	}
	for _, d := range l.domains {
		if strings.HasSuffix(name, d) {
			return true
		}
	}
	return false
}

// originHost lower-cases v and drops any scheme and path.
func originHost(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if strings.Contains(v, "://") {
		if u, err := url.Parse(v); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return strings.TrimRight(v, "/")
}

// newCORS allows every origin in development or when no allow-list is set.
func newCORS(cfg *config.AppConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		AllowOriginFunc:  func(string) bool { return true },
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		c.AllowOriginFunc = newOriginAllowList(cfg.AllowedOrigins).Allows
	}
	return cors.New(c)
}
