package cache

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// KindQuery prefixes keys of per-query documents.
const KindQuery = "query"

// Key derives the storage key for (query, language) under kind:
// kind + ":" + hex(BLAKE2b-256(trimmed query + NUL + language)).
// The hash only bounds key length and spreads keys evenly; it is not
// a security boundary. The NUL separator keeps ("ab", "c") and
// ("a", "bc") apart.
func Key(kind, query, language string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(query) + "\x00" + language))
	return kind + ":" + hex.EncodeToString(sum[:])
}
