package catalog

import (
	"testing"

	"catalog-import-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestParseBool(t *testing.T) {
	tests := []struct {
		raw  string
		def  bool
		want bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{" Yes ", false, true},
		{"1", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"maybe", true, false},
		{"", true, true},
		{"   ", false, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBool(tt.raw, tt.def), "ParseBool(%q, %v)", tt.raw, tt.def)
	}
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://protekauto.ru", NormalizeURL("protekauto.ru"))
	assert.Equal(t, "http://example.com/a", NormalizeURL("  http://example.com/a  "))
	assert.Equal(t, "https://example.com", NormalizeURL("https://example.com"))
	assert.Equal(t, "HTTPS://EXAMPLE.COM", NormalizeURL("HTTPS://EXAMPLE.COM"))
	assert.Equal(t, "", NormalizeURL("   "))
}

func TestParseNames_SplitsOnPipe(t *testing.T) {
	assert.Equal(t, []string{"Toyota", "Lexus"}, ParseNames(" Toyota | Lexus ||Toyota"))
	assert.Nil(t, ParseNames(""))
}

func TestParseSpecifications(t *testing.T) {
	specs, rejected := ParseSpecifications("Вес:5кг, Размер: 10x20 ,broken,:novalue,Резьба:M10:1.25")

	assert.Equal(t, []models.Specification{
		{Name: "Вес", Value: "5кг"},
		{Name: "Размер", Value: "10x20"},
		{Name: "Резьба", Value: "M10:1.25"},
	}, specs)
	assert.Equal(t, []string{"broken", ":novalue"}, rejected)
}

func TestParseSpecifications_Empty(t *testing.T) {
	specs, rejected := ParseSpecifications("")
	assert.Empty(t, specs)
	assert.Empty(t, rejected)
}

func TestSpecifications_RoundTrip(t *testing.T) {
	original := []models.Specification{{Name: "Вес", Value: "5кг"}, {Name: "Цвет", Value: "чёрный"}}
	parsed, rejected := ParseSpecifications(FormatSpecifications(original))
	assert.Empty(t, rejected)
	assert.Equal(t, original, parsed)
}

func TestParseLinkItems(t *testing.T) {
	items, rejected := ParseLinkItems("Авито:avito.ru/item/1:avito.png,Drom:https://drom.ru,nourl,Exist:http://exist.ru:exist.svg")

	assert.Equal(t, []LinkItem{
		{Name: "Авито", URL: "https://avito.ru/item/1", Extra: "avito.png"},
		{Name: "Drom", URL: "https://drom.ru"},
		{Name: "Exist", URL: "http://exist.ru", Extra: "exist.svg"},
	}, items)
	assert.Equal(t, []string{"nourl"}, rejected)
}

func TestParseDistributors(t *testing.T) {
	distributors, rejected := ParseDistributors("Автодок:autodoc.ru:Москва,Emex:emex.ru,bad")

	assert.Equal(t, []models.Distributor{
		{Name: "Автодок", URL: "https://autodoc.ru", Location: "Москва"},
		{Name: "Emex", URL: "https://emex.ru"},
	}, distributors)
	assert.Equal(t, []string{"bad"}, rejected)
}

func TestDistributors_RoundTrip(t *testing.T) {
	original := []models.Distributor{
		{Name: "Автодок", URL: "https://autodoc.ru", Location: "Москва"},
		{Name: "Emex", URL: "https://emex.ru"},
	}
	parsed, rejected := ParseDistributors(FormatDistributors(original))
	assert.Empty(t, rejected)
	assert.Equal(t, original, parsed)
}

func TestParseLinkItems_KeepsPort(t *testing.T) {
	items, rejected := ParseLinkItems("Shop:https://host:8080/p:logo.png,Local:http://localhost:3000,Bare:https://host:8443")

	assert.Empty(t, rejected)
	assert.Equal(t, []LinkItem{
		{Name: "Shop", URL: "https://host:8080/p", Extra: "logo.png"},
		{Name: "Local", URL: "http://localhost:3000"},
		{Name: "Bare", URL: "https://host:8443"},
	}, items)
}

func TestMarketplaceLinks_PortRoundTrip(t *testing.T) {
	links := []models.MarketplaceLink{{Name: "Shop", URL: "https://host:8080/p", Logo: "m1"}}
	cell := FormatMarketplaceLinks(links, func(string) string { return "logo.png" })

	items, rejected := ParseLinkItems(cell)
	assert.Empty(t, rejected)
	assert.Equal(t, []LinkItem{{Name: "Shop", URL: "https://host:8080/p", Extra: "logo.png"}}, items)
}

func TestFormatDistributors_OmitsEmptyLocation(t *testing.T) {
	got := FormatDistributors([]models.Distributor{
		{Name: "Emex", URL: "https://emex.ru"},
		{Name: "Автодок", URL: "https://autodoc.ru", Location: "Москва"},
	})
	assert.Equal(t, "Emex:https://emex.ru,Автодок:https://autodoc.ru:Москва", got)
}

func TestFormatMarketplaceLinks(t *testing.T) {
	links := []models.MarketplaceLink{
		{Name: "Авито", URL: "https://avito.ru", Logo: "m1"},
		{Name: "Drom", URL: "https://drom.ru"},
	}
	got := FormatMarketplaceLinks(links, func(id string) string {
		if id == "m1" {
			return "avito.png"
		}
		return ""
	})
	assert.Equal(t, "Авито:https://avito.ru:avito.png,Drom:https://drom.ru", got)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Тормозная система":       "tormoznaya-sistema",
		"Щётка стеклоочистителя": "schyotka-stekloochistitelya",
		"  Brake   Pads!! ":       "brake-pads",
		"Объём 2.5 л":             "obyom-25-l",
		"Жёсткий -- диск":         "zhyostkiy-disk",
		"!!!":                     "",
	}
	for input, want := range tests {
		assert.Equal(t, want, Slugify(input), "Slugify(%q)", input)
	}
}
