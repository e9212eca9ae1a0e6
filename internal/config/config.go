// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Defaults for the willhaben used-car search this service was built around.
const (
	defaultSearchURL = "https://www.willhaben.at/iad/gebrauchtwagen/auto/gebrauchtwagenboerse?rows=30&isNavigation=true&page=1&PRICE_FROM=0&PRICE_TO=10000"

	defaultPushEndpoint = "https://exp.host/--/api/v2/push/send"
	defaultPort         = 8083
	defaultPriceCeiling = 10000
)

// Config holds the application configuration.
type Config struct {
	ListenAddr   string
	SearchURL    string
	PushEndpoint string
	ProxyURLs    []*url.URL
	PriceCeiling int
	LogLevel     string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := defaultPort
	if raw := os.Getenv("API_PORT"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("invalid API_PORT %q", raw)
		}
		port = p
	}

	searchURL := os.Getenv("SEARCH_URL")
	if searchURL == "" {
		searchURL = defaultSearchURL
	}

	pushEndpoint := os.Getenv("PUSH_ENDPOINT")
	if pushEndpoint == "" {
		pushEndpoint = defaultPushEndpoint
	}

	ceiling := defaultPriceCeiling
	if raw := os.Getenv("PRICE_CEILING"); raw != "" {
		c, err := strconv.Atoi(raw)
		if err != nil || c < 0 {
			return nil, fmt.Errorf("invalid PRICE_CEILING %q", raw)
		}
		ceiling = c
	}

	var proxies []*url.URL
	if raw := os.Getenv("PROXY_URLS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			u, err := url.Parse(s)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("invalid proxy URL %q in PROXY_URLS", s)
			}
			proxies = append(proxies, u)
		}
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		ListenAddr:   fmt.Sprintf(":%d", port),
		SearchURL:    searchURL,
		PushEndpoint: pushEndpoint,
		ProxyURLs:    proxies,
		PriceCeiling: ceiling,
		LogLevel:     logLevel,
	}, nil
}
