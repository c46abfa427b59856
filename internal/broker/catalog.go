// Package broker talks to the supported Indian stock brokers and turns their
// payloads into canonical holdings and transactions.
//
// A Source is chosen once per (broker, credentials) pair: brokers that are not
// live yet get a Simulated source, Angel One with a TOTP secret gets the
// SmartAPI source, everything else the generic HTTP source. All outbound
// calls go through a shared RateLimiter.
package broker

import (
	"sort"

	"taxsync-pro/internal/model"
)

// AuthType is how a broker validates credentials.
type AuthType string

const (
	AuthOAuth  AuthType = "oauth"
	AuthAPIKey AuthType = "api_key"
	AuthToken  AuthType = "token"
)

// Config describes one supported broker.
type Config struct {
	Name              string   `json:"name" toml:"name"`
	DisplayName       string   `json:"displayName" toml:"display_name"`
	APIURL            string   `json:"apiUrl" toml:"api_url"`
	AuthType          AuthType `json:"authType" toml:"auth_type"`
	IsLive            bool     `json:"isLive" toml:"is_live"`
	Features          []string `json:"supportedFeatures" toml:"features"`
	RequestsPerMinute int      `json:"requestsPerMinute" toml:"requests_per_minute"`
	RequestsPerDay    int      `json:"requestsPerDay" toml:"requests_per_day"`
}

// Catalog maps broker name to its config.
type Catalog map[string]Config

// DefaultCatalog returns the built-in broker list.
func DefaultCatalog() Catalog {
	return Catalog{
		"zerodha": {
			Name:              "zerodha",
			DisplayName:       "Zerodha",
			APIURL:            "https://api.kite.trade",
			AuthType:          AuthOAuth,
			IsLive:            true,
			Features:          []string{"portfolio", "orders", "positions", "margins", "historical_data"},
			RequestsPerMinute: 10,
			RequestsPerDay:    5000,
		},
		"upstox": {
			Name:              "upstox",
			DisplayName:       "Upstox",
			APIURL:            "https://api.upstox.com/v2",
			AuthType:          AuthOAuth,
			IsLive:            true,
			Features:          []string{"portfolio", "orders", "positions", "margins"},
			RequestsPerMinute: 25,
			RequestsPerDay:    10000,
		},
		"groww": {
			Name:              "groww",
			DisplayName:       "Groww",
			APIURL:            "https://groww.in/v1/api",
			AuthType:          AuthToken,
			IsLive:            true,
			Features:          []string{"portfolio", "orders"},
			RequestsPerMinute: 20,
			RequestsPerDay:    8000,
		},
		"angelone": {
			Name:              "angelone",
			DisplayName:       "Angel One",
			APIURL:            "https://apiconnect.angelbroking.com",
			AuthType:          AuthAPIKey,
			IsLive:            true,
			Features:          []string{"portfolio", "orders", "positions", "margins", "historical_data"},
			RequestsPerMinute: 15,
			RequestsPerDay:    6000,
		},
		"fivepaisa": {
			Name:              "fivepaisa",
			DisplayName:       "5paisa",
			APIURL:            "https://openapi.5paisa.com",
			AuthType:          AuthAPIKey,
			IsLive:            true,
			Features:          []string{"portfolio", "orders", "positions"},
			RequestsPerMinute: 12,
			RequestsPerDay:    4000,
		},
		"iifl": {
			Name:              "iifl",
			DisplayName:       "IIFL Securities",
			APIURL:            "https://ttblaze.iifl.com",
			AuthType:          AuthAPIKey,
			IsLive:            false,
			Features:          []string{"portfolio", "orders"},
			RequestsPerMinute: 10,
			RequestsPerDay:    3000,
		},
	}
}

// Lookup returns the config for name or an UnsupportedBrokerError.
func (c Catalog) Lookup(name string) (Config, error) {
	cfg, ok := c[name]
	if !ok {
		return Config{}, &model.UnsupportedBrokerError{Broker: name}
	}
	return cfg, nil
}

// Names returns broker names in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// List returns configs ordered by name.
func (c Catalog) List() []Config {
	out := make([]Config, 0, len(c))
	for _, n := range c.Names() {
		out = append(out, c[n])
	}
	return out
}

// Override is a partial broker config read from the catalog file.
// Nil fields keep the built-in value.
type Override struct {
	APIURL            *string `toml:"api_url"`
	IsLive            *bool   `toml:"is_live"`
	RequestsPerMinute *int    `toml:"requests_per_minute"`
	RequestsPerDay    *int    `toml:"requests_per_day"`
}

// Apply returns a copy of c with overrides merged in. Overrides for unknown
// brokers are ignored.
func (c Catalog) Apply(overrides map[string]Override) Catalog {
	out := make(Catalog, len(c))
	for name, cfg := range c {
		if o, ok := overrides[name]; ok {
			if o.APIURL != nil {
				cfg.APIURL = *o.APIURL
			}
			if o.IsLive != nil {
				cfg.IsLive = *o.IsLive
			}
			if o.RequestsPerMinute != nil && *o.RequestsPerMinute > 0 {
				cfg.RequestsPerMinute = *o.RequestsPerMinute
			}
			if o.RequestsPerDay != nil && *o.RequestsPerDay > 0 {
				cfg.RequestsPerDay = *o.RequestsPerDay
			}
		}
		out[name] = cfg
	}
	return out
}
