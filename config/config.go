// Package config holds application level configuration, loaded with koanf.
//
// Config is loaded in the following order (later sources override earlier):
//  1. Registered defaults
//  2. Auto-discovered authlink.yaml
//  3. Environment variables with the AL__ prefix
//
// Environment variable transformation:
//   - AL__SERVER__PORT → server.port
//   - AL__FRONTEND__MOBILE_URL → frontend.mobileUrl (underscores become camelCase)
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Filename of the standard configuration file.
const ConfigFile = "authlink.yaml"

// Config is the global koanf instance used to access application level
// configuration options.
var Config = koanf.New(".")

var defaultsLoaded sync.Once

func init() {
	registerCoreKeys()

	// Look for an authlink.yaml file in the current directory or any parent.
	if cfg := searchForConfig(ConfigFile, "."); cfg != "" {
		if err := Config.Load(file.Provider(cfg), yaml.Parser()); err != nil {
			panic("config: error loading file: " + err.Error())
		}
	}

	if err := Config.Load(env.Provider("AL__", ".", TransformEnv), nil); err != nil {
		panic("config: error loading env: " + err.Error())
	}
}

// String returns a config value as a string.
func String(key string) string {
	EnsureDefaultsLoaded()
	return Config.String(key)
}

// Int returns a config value as an int.
func Int(key string) int {
	EnsureDefaultsLoaded()
	return Config.Int(key)
}

// Bool returns a config value as a bool.
func Bool(key string) bool {
	EnsureDefaultsLoaded()
	return Config.Bool(key)
}

// Duration returns a config value as a time.Duration. String values such as
// "24h" are parsed.
func Duration(key string) time.Duration {
	EnsureDefaultsLoaded()
	return Config.Duration(key)
}

// Strings returns a config value as a string slice.
func Strings(key string) []string {
	EnsureDefaultsLoaded()
	return Config.Strings(key)
}

// LoadDefaults loads default configuration values into the global Config
// instance. Existing values take precedence.
func LoadDefaults(defaults map[string]interface{}) {
	pruned := map[string]interface{}{}
	for k, v := range defaults {
		if !Config.Exists(k) {
			pruned[k] = v
		}
	}
	if err := Config.Load(confmap.Provider(pruned, "."), nil); err != nil {
		panic("config: error loading defaults: " + err.Error())
	}
}

// EnsureDefaultsLoaded loads registered defaults for keys that were not set
// by a file or the environment. Thread-safe, runs exactly once.
func EnsureDefaultsLoaded() {
	defaultsLoaded.Do(func() {
		LoadDefaults(registeredDefaults())
	})
}

// TransformEnv converts AL__FRONTEND__MOBILE_URL to frontend.mobileUrl.
func TransformEnv(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "AL__"))
	segments := strings.Split(s, "__")
	for i, segment := range segments {
		parts := strings.Split(segment, "_")
		for j := 1; j < len(parts); j++ {
			parts[j] = capitalize(parts[j])
		}
		segments[i] = strings.Join(parts, "")
	}
	return strings.Join(segments, ".")
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// searchForConfig walks up the directory tree from startDir until the named
// file is found or the root is reached.
func searchForConfig(filename string, startDir string) string {
	d, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	p := filepath.Join(d, filename)
	if _, err = os.Stat(p); err == nil {
		return p
	}
	parentDir := filepath.Dir(d)
	if parentDir == d {
		return ""
	}
	return searchForConfig(filename, parentDir)
}

func registerCoreKeys() {
	RegisterKeys(
		KeyInfo{Key: "server.host", Description: "Interface the HTTP server binds to", Type: "string", Default: "localhost"},
		KeyInfo{Key: "server.port", Description: "Port the HTTP server listens on", Type: "int", Default: 8000},
		KeyInfo{Key: "server.address", Description: "Externally visible address, used for redirect URIs when forwarded headers are absent", Type: "string"},
		KeyInfo{Key: "server.corsOrigins", Description: "Origins allowed to call the JSON endpoints cross-site", Type: "[]string"},
		KeyInfo{Key: "server.tls.certFile", Description: "Certificate file, enables TLS when set", Type: "string"},
		KeyInfo{Key: "server.tls.keyFile", Description: "Key file for the TLS certificate", Type: "string"},
		KeyInfo{Key: "auth.signingKey", Description: "HMAC key used to sign session tokens", Type: "string"},
		KeyInfo{Key: "auth.tokenExpiration", Description: "Session token lifetime", Type: "duration", Default: "24h"},
		KeyInfo{Key: "auth.refreshExpiration", Description: "Refresh token lifetime", Type: "duration", Default: "720h"},
		KeyInfo{Key: "google.clientId", Description: "Google OAuth2 client ID", Type: "string"},
		KeyInfo{Key: "google.clientSecret", Description: "Google OAuth2 client secret", Type: "string"},
		KeyInfo{Key: "google.calendarRedirectUri", Description: "Fixed redirect URI for the calendar linking flow, derived from the request when empty", Type: "string"},
		KeyInfo{Key: "frontend.baseUrl", Description: "Web frontend base URL, redirect target after login", Type: "string"},
		KeyInfo{Key: "frontend.mobileUrl", Description: "Mobile deep link base, e.g. bestie://login", Type: "string"},
		KeyInfo{Key: "frontend.mobileCalendarUrl", Description: "Mobile deep link for calendar results, e.g. bestie://calendar", Type: "string"},
		KeyInfo{Key: "storage.driver", Description: "Persistence backend: memory, sqlite, or postgres", Type: "string", Default: "memory"},
		KeyInfo{Key: "storage.dsn", Description: "Connection string for the sqlite or postgres backend", Type: "string"},
	)
}
