package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// maxKeyLength is the longest derived key kept verbatim; longer keys
// are replaced by a digest to keep store keys bounded.
const maxKeyLength = 200

// DefaultNamespace is used when callers pass an empty namespace.
const DefaultNamespace = "default"

// makeKey builds the full store key for a logical key. Every key is
// prefixed with its namespace so Clear can delete by prefix without
// touching unrelated entries.
func makeKey(namespace, key string) string {
	return namespacePrefix(namespace) + key
}

func namespacePrefix(namespace string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + ":"
}

// BuildKey derives a deterministic cache key from positional parts and
// an optional attribute map (sorted for determinism). Useful for
// caching function results by argument.
//
// Example:
//
//	BuildKey([]string{"vendor", "42"}, map[string]string{"region": "eu"})
//	// "vendor:42:region=eu"
//
// Keys longer than 200 characters are replaced by a sha256 digest.
func BuildKey(parts []string, attrs map[string]string) string {
	all := make([]string, 0, len(parts)+len(attrs))
	all = append(all, parts...)

	if len(attrs) > 0 {
		attrKeys := make([]string, 0, len(attrs))
		for k := range attrs {
			attrKeys = append(attrKeys, k)
		}
		sort.Strings(attrKeys)
		for _, k := range attrKeys {
			all = append(all, fmt.Sprintf("%s=%s", k, attrs[k]))
		}
	}

	key := strings.Join(all, ":")
	if len(key) > maxKeyLength {
		sum := sha256.Sum256([]byte(key))
		return hex.EncodeToString(sum[:])
	}
	return key
}
