package editor

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateStepID derives a unique step id from a display name. The name is
// slugified, then numeric suffixes are probed against the existing ids until
// a free one is found, so repeated names never collide. A name that slugs to
// nothing falls back to a random id.
func GenerateStepID(name string, existing map[string]bool) string {
	slug := slugify(name)
	if slug == "" {
		slug = "step-" + uuid.NewString()[:8]
	}
	if !existing[slug] {
		return slug
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", slug, i)
		if !existing[candidate] {
			return candidate
		}
	}
}

// slugify lowercases the name and keeps only letters, digits, underscores,
// and dashes; runs of other characters collapse into a single dash.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true // swallow leading dashes
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
