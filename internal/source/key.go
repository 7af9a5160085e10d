package source

import (
	"strings"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
)

const (
	keySeparator     = "|"
	derivedSeparator = "#"
)

//nolint:gochecknoglobals // Stateless and safe for concurrent use.
var keyEscaper = strings.NewReplacer(`\`, `\\`, keySeparator, `\|`, derivedSeparator, `\#`)

// RawKey renders the raw cache key "source|base|overlay".
// Separators inside components are escaped, so distinct queries never collide.
func RawKey(query bundle.Query) string {
	return keyEscaper.Replace(query.Source) + keySeparator +
		keyEscaper.Replace(query.Version) + keySeparator +
		keyEscaper.Replace(query.Overlay)
}

// DerivedKey renders the derived cache key: the raw key plus the query kind.
func DerivedKey(query bundle.Query) string {
	return RawKey(query) + derivedSeparator + keyEscaper.Replace(string(query.Kind))
}
