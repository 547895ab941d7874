package acquire

import (
	"fmt"
	"strings"
	"time"
)

const maxSlugLen = 60

var transliterate = strings.NewReplacer(
	"İ", "i", "I", "i",
	"ğ", "g", "Ğ", "g",
	"ü", "u", "Ü", "u",
	"ş", "s", "Ş", "s",
	"ı", "i",
	"ö", "o", "Ö", "o",
	"ç", "c", "Ç", "c",
)

// Slug lowercases text, folds Turkish letters to ASCII and collapses every
// other run of characters into a single dash.
func Slug(text string) string {
	s := strings.ToLower(transliterate.Replace(text))

	var b strings.Builder
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	out := strings.TrimSuffix(b.String(), "-")
	if len(out) > maxSlugLen {
		out = strings.TrimSuffix(out[:maxSlugLen], "-")
	}
	return out
}

// FileName builds "<source>_<slug>_<unix millis>.mp4".
func FileName(src Source, caption string, now time.Time) string {
	slug := Slug(caption)
	if slug == "" {
		slug = "video"
	}
	return fmt.Sprintf("%s_%s_%d.mp4", src, slug, now.UnixMilli())
}

// DisplayName recovers a readable title from a stored file name.
func DisplayName(fileName string) string {
	name := strings.TrimPrefix(fileName, "masked_")
	name = strings.TrimSuffix(name, ".mp4")
	if i := strings.LastIndexByte(name, '_'); i > 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '_'); i > 0 {
		if _, err := ParseSource(name[:i]); err == nil {
			name = name[i+1:]
		}
	}
	return strings.ReplaceAll(name, "-", " ")
}
