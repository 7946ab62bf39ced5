package models

import (
	"encoding/json"
	"strings"
)

// Collection names in the document store
const (
	CollectionProducts           = "products"
	CollectionCategories         = "categories"
	CollectionSubcategories      = "subcategories"
	CollectionThirdSubcategories = "thirdsubcategories"
	CollectionBrands             = "brands"
	CollectionModels             = "models"
	CollectionModifications      = "modifications"
	CollectionMedia              = "media"
)

// Product is the typed view of a product document.
type Product struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Slug             string           `json:"slug"`
	Article          string           `json:"article"`
	Description      Description      `json:"description"`
	ShortDescription string           `json:"shortDescription,omitempty"`
	OEM              string           `json:"oem,omitempty"`
	Featured         bool             `json:"featured"`
	InStock          bool             `json:"inStock"`
	MetaTitle        string           `json:"metaTitle,omitempty"`
	MetaDescription  string           `json:"metaDescription,omitempty"`
	Specifications   []Specification  `json:"specifications,omitempty"`
	MarketplaceLinks MarketplaceLinks `json:"marketplaceLinks"`
	Distributors     []Distributor    `json:"distributors,omitempty"`
	Images           []ProductImage   `json:"images,omitempty"`

	// References hold document IDs
	Category         string   `json:"category"`
	Subcategory      string   `json:"subcategory,omitempty"`
	ThirdSubcategory string   `json:"thirdsubcategory,omitempty"`
	Brand            []string `json:"brand,omitempty"`
	Model            string   `json:"model,omitempty"`
	Modification     string   `json:"modification,omitempty"`
}

type Specification struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type MarketplaceLinks struct {
	Ozon        string            `json:"ozon,omitempty"`
	Wildberries string            `json:"wildberries,omitempty"`
	Others      []MarketplaceLink `json:"others,omitempty"`
}

func (m MarketplaceLinks) IsEmpty() bool {
	return m.Ozon == "" && m.Wildberries == "" && len(m.Others) == 0
}

type MarketplaceLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Logo string `json:"logo,omitempty"` // media ID
}

type Distributor struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Location string `json:"location,omitempty"`
}

type ProductImage struct {
	Image string `json:"image"` // media ID
	Alt   string `json:"alt,omitempty"`
}

// Reference is a named lookup document (category, brand, model, ...).
type Reference struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Parent string `json:"-"`
}

// Media is an uploaded file; never created by the importer.
type Media struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Alt      string `json:"alt,omitempty"`
}

// Label is the identifier written to exports: filename, or alt text when
// the filename is unknown.
func (m Media) Label() string {
	if m.Filename != "" {
		return m.Filename
	}
	return m.Alt
}

// DescriptionKind tags the variant held by a Description.
type DescriptionKind int

const (
	DescriptionEmpty DescriptionKind = iota
	DescriptionPlain
	DescriptionRichText
)

// Description is either absent, plain text, or a structured rich-text document.
type Description struct {
	Kind DescriptionKind
	Text string
	Doc  *RichText
}

// RichText mirrors the editor document stored in rich-text fields.
type RichText struct {
	Root RichTextNode `json:"root"`
}

type RichTextNode struct {
	Type      string         `json:"type"`
	Version   int            `json:"version"`
	Children  []RichTextNode `json:"children,omitempty"`
	Direction string         `json:"direction,omitempty"`
	Indent    int            `json:"indent"`
	Text      string         `json:"text,omitempty"`
	Mode      string         `json:"mode,omitempty"`
}

// PlainDescription wraps text into a single-paragraph rich-text document.
// Blank text yields an empty description.
func PlainDescription(text string) Description {
	text = strings.TrimSpace(text)
	if text == "" {
		return Description{Kind: DescriptionEmpty}
	}
	return Description{
		Kind: DescriptionRichText,
		Doc: &RichText{Root: RichTextNode{
			Type:      "root",
			Version:   1,
			Direction: "ltr",
			Children: []RichTextNode{{
				Type:      "paragraph",
				Version:   1,
				Direction: "ltr",
				Children: []RichTextNode{{
					Type:    "text",
					Version: 1,
					Mode:    "normal",
					Text:    text,
				}},
			}},
		}},
	}
}

func (d Description) IsEmpty() bool {
	return d.Kind == DescriptionEmpty
}

// PlainText flattens the description; paragraphs are joined with newlines.
func (d Description) PlainText() string {
	switch d.Kind {
	case DescriptionPlain:
		return d.Text
	case DescriptionRichText:
		if d.Doc == nil {
			return ""
		}
		var paragraphs []string
		for _, block := range d.Doc.Root.Children {
			paragraphs = append(paragraphs, collectText(block))
		}
		return strings.Join(paragraphs, "\n")
	default:
		return ""
	}
}

func collectText(node RichTextNode) string {
	if node.Type == "text" {
		return node.Text
	}
	var sb strings.Builder
	for _, child := range node.Children {
		sb.WriteString(collectText(child))
	}
	return sb.String()
}

func (d Description) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case DescriptionPlain:
		return json.Marshal(d.Text)
	case DescriptionRichText:
		return json.Marshal(d.Doc)
	default:
		return []byte("null"), nil
	}
}

func (d *Description) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "" || trimmed == "null":
		*d = Description{Kind: DescriptionEmpty}
	case strings.HasPrefix(trimmed, `"`):
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			*d = Description{Kind: DescriptionEmpty}
		} else {
			*d = Description{Kind: DescriptionPlain, Text: text}
		}
	default:
		var doc RichText
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		*d = Description{Kind: DescriptionRichText, Doc: &doc}
	}
	return nil
}

// DecodeDocument converts a loosely typed store document into v.
func DecodeDocument(doc map[string]interface{}, v interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

type PaginationInfo struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     Error  `json:"error"`
	Timestamp string `json:"timestamp,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ToDocumentValue converts typed values into plain maps and slices that every
// store backend can persist.
func ToDocumentValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
