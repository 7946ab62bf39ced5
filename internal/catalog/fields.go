package catalog

import (
	"strings"

	"catalog-import-service/internal/models"
)

// Cell micro-format separators
const (
	itemSeparator  = ","
	partSeparator  = ":"
	valueSeparator = "|"
)

// ParseBool recognises true/1/yes in any case. Blank input yields def,
// anything else false.
func ParseBool(raw string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return def
	}
	switch value {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// FormatBool renders a flag the way ParseBool reads it back.
func FormatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// NormalizeURL trims the value and prefixes https:// when no http(s) scheme
// is present. Blank input stays blank.
func NormalizeURL(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return value
	}
	return "https://" + value
}

// ParseNames splits a pipe separated list, dropping blanks and repeats.
func ParseNames(raw string) []string {
	return splitUnique(raw, valueSeparator)
}

// ParseList splits a comma separated list, dropping blanks and repeats.
func ParseList(raw string) []string {
	return splitUnique(raw, itemSeparator)
}

func splitUnique(raw, sep string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, sep) {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

// ParseSpecifications reads "Name:Value,Name:Value". Items without a colon or
// with an empty name are returned as rejected.
func ParseSpecifications(raw string) (specs []models.Specification, rejected []string) {
	for _, item := range strings.Split(raw, itemSeparator) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, value, ok := strings.Cut(item, partSeparator)
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			rejected = append(rejected, item)
			continue
		}
		specs = append(specs, models.Specification{Name: name, Value: strings.TrimSpace(value)})
	}
	return specs, rejected
}

// FormatSpecifications is the inverse of ParseSpecifications.
func FormatSpecifications(specs []models.Specification) string {
	items := make([]string, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			continue
		}
		items = append(items, spec.Name+partSeparator+spec.Value)
	}
	return strings.Join(items, itemSeparator)
}

// LinkItem is one "Name:URL[:Extra]" entry of a link list cell.
type LinkItem struct {
	Name  string
	URL   string
	Extra string
}

// ParseLinkItems reads "Name:URL[:Extra],...". A URL may keep its scheme
// ("Ozon:https://ozon.ru"). Items with fewer than two parts are rejected.
func ParseLinkItems(raw string) (items []LinkItem, rejected []string) {
	for _, item := range strings.Split(raw, itemSeparator) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := splitLinkParts(item)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			rejected = append(rejected, item)
			continue
		}
		link := LinkItem{Name: parts[0], URL: NormalizeURL(parts[1])}
		if len(parts) > 2 {
			link.Extra = strings.Join(parts[2:], partSeparator)
		}
		items = append(items, link)
	}
	return items, rejected
}

// splitLinkParts splits on ":" and glues "http"/"https" back onto the
// following "//host" part, along with a "port[/path]" part after it.
func splitLinkParts(item string) []string {
	raw := strings.Split(item, partSeparator)
	parts := make([]string, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		part := strings.TrimSpace(raw[i])
		scheme := strings.ToLower(part)
		if (scheme == "http" || scheme == "https") && i+1 < len(raw) && strings.HasPrefix(raw[i+1], "//") {
			part = part + partSeparator + strings.TrimSpace(raw[i+1])
			i++
			if i+1 < len(raw) && isPortPart(strings.TrimSpace(raw[i+1])) {
				part = part + partSeparator + strings.TrimSpace(raw[i+1])
				i++
			}
		}
		parts = append(parts, part)
	}
	return parts
}

// isPortPart reports whether s is a port number optionally followed by a path.
func isPortPart(s string) bool {
	digits := s
	if slash := strings.IndexAny(s, "/?#"); slash >= 0 {
		digits = s[:slash]
	}
	if digits == "" || len(digits) > 5 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseDistributors reads "Name:URL[:Location],...".
func ParseDistributors(raw string) (distributors []models.Distributor, rejected []string) {
	items, rejected := ParseLinkItems(raw)
	for _, item := range items {
		distributors = append(distributors, models.Distributor{
			Name:     item.Name,
			URL:      item.URL,
			Location: strings.TrimSpace(item.Extra),
		})
	}
	return distributors, rejected
}

// FormatDistributors writes "Name:URL[:Location]" items.
func FormatDistributors(distributors []models.Distributor) string {
	items := make([]string, 0, len(distributors))
	for _, d := range distributors {
		parts := []string{d.Name, d.URL}
		if d.Location != "" {
			parts = append(parts, d.Location)
		}
		items = append(items, strings.Join(parts, partSeparator))
	}
	return strings.Join(items, itemSeparator)
}

// FormatMarketplaceLinks writes "Name:URL[:Logo]" items; logo is the label
// already resolved from the media ID.
func FormatMarketplaceLinks(links []models.MarketplaceLink, logoLabel func(mediaID string) string) string {
	items := make([]string, 0, len(links))
	for _, link := range links {
		parts := []string{link.Name, link.URL}
		if link.Logo != "" && logoLabel != nil {
			if label := logoLabel(link.Logo); label != "" {
				parts = append(parts, label)
			}
		}
		items = append(items, strings.Join(parts, partSeparator))
	}
	return strings.Join(items, itemSeparator)
}
