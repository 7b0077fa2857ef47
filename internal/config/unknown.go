package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each section to its valid keys.
var knownKeys = map[string]map[string]bool{
	"service": {
		"base_url": true, "page_size": true, "websocket": true,
	},
	"auth": {
		"client_id": true, "device_url": true, "token_url": true,
		"identity_url": true, "token_file": true,
	},
	"sync": {
		"poll_interval": true, "sync_timeout": true, "database_path": true,
	},
	"logging": {
		"log_level": true, "log_file": true, "log_format": true,
		"log_retention_days": true,
	},
	"network": {
		"connect_timeout": true, "probe_interval": true, "user_agent": true,
	},
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		errs = append(errs, buildKeyError(key.String()))
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an unknown key, suggesting
// the closest known key within the same section when one is close enough.
func buildKeyError(keyStr string) error {
	section, field, found := strings.Cut(keyStr, ".")
	if !found {
		suggestion := closestMatch(section, sectionNames())
		if suggestion != "" {
			return fmt.Errorf("unknown config section %q, did you mean %q?", section, suggestion)
		}

		return fmt.Errorf("unknown config section %q", section)
	}

	fields, ok := knownKeys[section]
	if !ok {
		return fmt.Errorf("unknown config section %q", section)
	}

	suggestion := closestMatch(field, sortedKeys(fields))
	if suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s], did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

func sectionNames() []string {
	names := make([]string, 0, len(knownKeys))
	for name := range knownKeys {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// closestMatch returns the candidate with the smallest edit distance from
// input, or "" when nothing is within maxLevenshteinDistance. Candidates
// must be sorted for deterministic ties.
func closestMatch(input string, candidates []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, cand := range candidates {
		if d := levenshtein(input, cand); d < bestDist {
			best = cand
			bestDist = d
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings using the
// two-row dynamic programming form.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i

		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
