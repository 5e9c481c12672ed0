package storage

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// Key identifies one (state, district, commodity) price series in every backend.
type Key string

// NormalizeKey folds free-text region and commodity names into a stable
// [a-z0-9_] token. Runs of separators collapse to a single underscore.
// Input with non-ASCII runes gets a hash suffix so that names written in
// other scripts do not all fold to the same key.
func NormalizeKey(state, district, commodity string) Key {
	raw := strings.ToLower(state + "_" + district + "_" + commodity)

	var b strings.Builder
	b.Grow(len(raw) + 9)
	lastUnderscore := false
	folded := false
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if r > unicode.MaxASCII {
			folded = true
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	if folded {
		h := fnv.New32a()
		_, _ = h.Write([]byte(raw))
		if !lastUnderscore {
			b.WriteByte('_')
		}
		fmt.Fprintf(&b, "%08x", h.Sum32())
	}
	return Key(b.String())
}

func (k Key) String() string {
	return string(k)
}
