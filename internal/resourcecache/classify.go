package resourcecache

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Tier is one of the three named caches
type Tier string

const (
	TierStatic  Tier = "static"
	TierDynamic Tier = "dynamic"
	TierAPI     Tier = "api"
)

// Policy is how a tier balances cache and network
type Policy string

const (
	CacheFirst   Policy = "cache-first"
	NetworkFirst Policy = "network-first"
)

// CacheNames are the versioned cache names of one deployment
type CacheNames struct {
	App     string
	Static  string
	Dynamic string
	API     string
}

// NewCacheNames derives every cache name from a version like "1.0.0"
func NewCacheNames(version string) CacheNames {
	return CacheNames{
		App:     fmt.Sprintf("safety-app-v%s", version),
		Static:  fmt.Sprintf("safety-static-v%s", version),
		Dynamic: fmt.Sprintf("safety-dynamic-v%s", version),
		API:     fmt.Sprintf("safety-api-v%s", version),
	}
}

// For returns the cache name of a tier
func (n CacheNames) For(t Tier) string {
	switch t {
	case TierStatic:
		return n.Static
	case TierAPI:
		return n.API
	}
	return n.Dynamic
}

// Current reports whether name is one of the three live tiers
func (n CacheNames) Current(name string) bool {
	return name == n.Static || name == n.Dynamic || name == n.API
}

// DefaultManifest is the application shell precached on install
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/manifest.json",
	"/assets/css/main.css",
	"/assets/js/main.js",
	"/assets/js/router.js",
	"/assets/images/icons/icon-192x192.png",
	"/assets/images/icons/icon-512x512.png",
	"https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.4.0/css/all.min.css",
}

var (
	staticExtensions = map[string]bool{
		".css": true, ".js": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".svg": true, ".ico": true, ".woff": true, ".woff2": true, ".ttf": true,
	}

	apiPrefixes = []string{"/api/stats", "/api/user", "/api/videos"}

	dynamicHosts = []string{"fonts.googleapis.com", "fonts.gstatic.com", "cdnjs.cloudflare.com"}
)

// Classification is the tier and policy chosen for a request URL.
// Fallback is set when no rule matched.
type Classification struct {
	Tier     Tier
	Policy   Policy
	Fallback bool
}

// Classifier maps request URLs to tiers. It is pure and safe for
// concurrent use.
type Classifier struct {
	manifestPaths map[string]bool
}

// NewClassifier builds a classifier whose static tier includes manifest
func NewClassifier(manifest []string) *Classifier {
	paths := make(map[string]bool, len(manifest))
	for _, entry := range manifest {
		if u, err := url.Parse(entry); err == nil {
			paths[u.Path] = true
		}
	}
	return &Classifier{manifestPaths: paths}
}

// Classify applies, in order: static manifest or extension, API prefix,
// known external host, then falls back to dynamic.
func (c *Classifier) Classify(u *url.URL) Classification {
	p := u.Path
	if p == "" {
		p = "/"
	}

	if c.manifestPaths[p] || staticExtensions[strings.ToLower(path.Ext(p))] {
		return Classification{Tier: TierStatic, Policy: CacheFirst}
	}

	for _, prefix := range apiPrefixes {
		if strings.HasPrefix(p, prefix) {
			return Classification{Tier: TierAPI, Policy: NetworkFirst}
		}
	}

	host := u.Hostname()
	for _, h := range dynamicHosts {
		if host == h {
			return Classification{Tier: TierDynamic, Policy: NetworkFirst}
		}
	}

	return Classification{Tier: TierDynamic, Policy: NetworkFirst, Fallback: true}
}
