package catalog

import (
	"regexp"
	"strings"
)

var cyrillicToLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo", 'ж': "zh",
	'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m", 'н': "n", 'о': "o",
	'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "h", 'ц': "ts",
	'ч': "ch", 'ш': "sh", 'щ': "sch", 'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu",
	'я': "ya",
	'А': "A", 'Б': "B", 'В': "V", 'Г': "G", 'Д': "D", 'Е': "E", 'Ё': "Yo", 'Ж': "Zh",
	'З': "Z", 'И': "I", 'Й': "Y", 'К': "K", 'Л': "L", 'М': "M", 'Н': "N", 'О': "O",
	'П': "P", 'Р': "R", 'С': "S", 'Т': "T", 'У': "U", 'Ф': "F", 'Х': "H", 'Ц': "Ts",
	'Ч': "Ch", 'Ш': "Sh", 'Щ': "Sch", 'Ъ': "", 'Ы': "Y", 'Ь': "", 'Э': "E", 'Ю': "Yu",
	'Я': "Ya",
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonWordRe    = regexp.MustCompile(`[^a-z0-9_-]+`)
	hyphensRe    = regexp.MustCompile(`-{2,}`)
)

// Slugify transliterates Cyrillic letters and reduces the name to lowercase
// ASCII words joined by hyphens.
func Slugify(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if latin, ok := cyrillicToLatin[r]; ok {
			sb.WriteString(latin)
			continue
		}
		sb.WriteRune(r)
	}

	slug := strings.ToLower(sb.String())
	slug = whitespaceRe.ReplaceAllString(strings.TrimSpace(slug), "-")
	slug = nonWordRe.ReplaceAllString(slug, "")
	slug = hyphensRe.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
