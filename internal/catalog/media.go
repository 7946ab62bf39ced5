package catalog

import (
	"context"
	"fmt"
	"path"
	"strings"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/store"

	"github.com/sirupsen/logrus"
)

// MediaResolver maps image identifiers from a sheet (filenames or alt texts)
// to uploaded media documents. It never creates media.
type MediaResolver struct {
	store  store.DocumentStore
	logger *logrus.Entry
}

func NewMediaResolver(s store.DocumentStore, logger *logrus.Logger) *MediaResolver {
	return &MediaResolver{
		store:  s,
		logger: logger.WithField("component", "media_resolver"),
	}
}

// Resolve tries, in order: exact filename, exact alt text, then the
// identifier without its extension against alt text and filename stems.
func (m *MediaResolver) Resolve(ctx context.Context, identifier string) (models.Media, bool, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.Media{}, false, nil
	}

	stem := strings.TrimSuffix(identifier, path.Ext(identifier))
	lookups := []store.Filter{
		{"filename": identifier},
		{"alt": identifier},
	}
	if stem != "" {
		lookups = append(lookups,
			store.Filter{"alt": stem},
			store.Filter{"filename": store.Prefix(stem + ".")},
		)
	}

	for _, filter := range lookups {
		_, byStem := filter["filename"].(store.Prefix)
		limit := 1
		if byStem {
			// "x." also matches "x.y.jpg"; scan for an exact stem
			limit = 0
		}

		docs, err := m.store.Find(ctx, models.CollectionMedia, filter, limit)
		if err != nil {
			return models.Media{}, false, fmt.Errorf("lookup media %q: %w", identifier, err)
		}
		for _, doc := range docs {
			media, err := decodeMedia(doc)
			if err != nil {
				return models.Media{}, false, err
			}
			if byStem && strings.TrimSuffix(media.Filename, path.Ext(media.Filename)) != stem {
				continue
			}
			return media, true, nil
		}
	}
	return models.Media{}, false, nil
}

// ResolveImages resolves identifiers in order and drops duplicates by media
// id. Unresolved identifiers are returned so the caller can report them.
func (m *MediaResolver) ResolveImages(ctx context.Context, identifiers []string) ([]models.ProductImage, []string, error) {
	var (
		images     []models.ProductImage
		unresolved []string
	)
	seen := make(map[string]bool)
	for _, identifier := range identifiers {
		media, ok, err := m.Resolve(ctx, identifier)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			m.logger.WithField("identifier", identifier).Warn("Media not found")
			unresolved = append(unresolved, identifier)
			continue
		}
		if seen[media.ID] {
			continue
		}
		seen[media.ID] = true
		images = append(images, models.ProductImage{Image: media.ID, Alt: media.Alt})
	}
	return images, unresolved, nil
}

func decodeMedia(doc store.Document) (models.Media, error) {
	var media models.Media
	if err := models.DecodeDocument(doc, &media); err != nil {
		return models.Media{}, fmt.Errorf("decode media %s: %w", doc.ID(), err)
	}
	return media, nil
}
