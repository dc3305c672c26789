package registry

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/snpm-dev/snpm/pkg/config"
)

// normalizeHost lowercases a host and strips the default port for its
// scheme, so "Example.com:443" and "example.com" match the same
// registry_auth entry.
func normalizeHost(rawurl string) string {
	u, err := url.Parse(rawurl)
	host := ""
	scheme := ""
	if err == nil && u.Host != "" {
		host = u.Host
		scheme = u.Scheme
	} else {
		host = rawurl
	}
	host = strings.ToLower(host)
	h, port, splitErr := splitHostPort(host)
	if splitErr == nil {
		if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
			return h
		}
	}
	return host
}

func splitHostPort(host string) (string, string, error) {
	idx := strings.LastIndex(host, ":")
	if idx < 0 {
		return host, "", nil
	}
	h, p := host[:idx], host[idx+1:]
	if _, err := strconv.Atoi(p); err != nil {
		return host, "", err
	}
	return h, p, nil
}

// authFor resolves the (scheme, token) pair to use for requestURL,
// applying spec.md §4.3's precedence: exact host match first, then the
// always_auth fallback to the default registry's token when the
// request targets the default registry's own host.
func authFor(cfg *config.Config, requestURL string) (scheme config.AuthScheme, token string, ok bool) {
	host := normalizeHost(requestURL)

	if tok, found := cfg.RegistryAuth[host]; found {
		scheme := cfg.DefaultRegistryAuthScheme
		if scheme == "" {
			scheme = config.SchemeBearer
		}
		return scheme, tok, true
	}

	defaultHost := normalizeHost(cfg.DefaultRegistry)
	if cfg.AlwaysAuth && host == defaultHost && cfg.DefaultRegistryAuthToken != "" {
		scheme := cfg.DefaultRegistryAuthScheme
		if scheme == "" {
			scheme = config.SchemeBearer
		}
		return scheme, cfg.DefaultRegistryAuthToken, true
	}

	return "", "", false
}

// authHeaderValue renders the Authorization header value for a
// (scheme, token) pair.
func authHeaderValue(scheme config.AuthScheme, token string) string {
	if scheme == config.SchemeBasic {
		return "Basic " + token
	}
	return "Bearer " + token
}
