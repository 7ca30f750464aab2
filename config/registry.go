package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
)

// KeyInfo contains metadata about a known configuration key.
type KeyInfo struct {
	Key         string      // Full config key path, e.g. "server.port"
	Description string      // What this config controls
	Type        string      // Type hint: "string", "int", "bool", "duration"
	Default     interface{} // Optional default value
}

var (
	registry   = make(map[string]KeyInfo)
	registryMu sync.RWMutex
)

// RegisterKeys documents expected config keys so that typos in config files
// and env vars can be flagged.
func RegisterKeys(infos ...KeyInfo) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, info := range infos {
		registry[info.Key] = info
	}
}

// AllRegisteredKeys returns all registered config keys sorted alphabetically.
func AllRegisteredKeys() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func registeredDefaults() map[string]interface{} {
	registryMu.RLock()
	defer registryMu.RUnlock()
	defaults := make(map[string]interface{})
	for key, info := range registry {
		if info.Default != nil {
			defaults[key] = info.Default
		}
	}
	return defaults
}

// Warning represents a configuration warning for an unknown or potentially
// misspelled key.
type Warning struct {
	Key         string
	Suggestions []string
}

func (w Warning) String() string {
	msg := fmt.Sprintf("'%s' is not a known config key", w.Key)
	if len(w.Suggestions) > 0 {
		msg += fmt.Sprintf(". Did you mean '%s'?", strings.Join(w.Suggestions, "' or '"))
	}
	return msg
}

// Validate checks all loaded configuration keys against the registry and
// returns warnings for unknown keys, with suggestions for similar ones.
func Validate() []Warning {
	var warnings []Warning
	for _, key := range Config.Keys() {
		registryMu.RLock()
		_, known := registry[key]
		registryMu.RUnlock()
		if known {
			continue
		}
		warnings = append(warnings, Warning{
			Key:         key,
			Suggestions: findSimilarKeys(key, 3),
		})
	}
	return warnings
}

// findSimilarKeys returns up to maxResults registered keys within edit
// distance 3 of the given key, most similar first. Keys sharing a namespace
// prefix get a small bonus.
func findSimilarKeys(key string, maxResults int) []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	type scored struct {
		key   string
		score int
	}
	var candidates []scored
	prefix := keyPrefix(key)
	for registeredKey := range registry {
		distance := levenshtein.ComputeDistance(key, registeredKey)
		if prefix != "" && prefix == keyPrefix(registeredKey) && distance > 0 {
			distance--
		}
		if distance <= 3 {
			candidates = append(candidates, scored{registeredKey, distance})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].key < candidates[j].key
	})

	result := make([]string, 0, maxResults)
	for i := 0; i < len(candidates) && i < maxResults; i++ {
		result = append(result, candidates[i].key)
	}
	return result
}

func keyPrefix(key string) string {
	lastDot := strings.LastIndex(key, ".")
	if lastDot == -1 {
		return ""
	}
	return key[:lastDot]
}
