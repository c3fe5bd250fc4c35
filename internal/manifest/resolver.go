package manifest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"rollscan/internal/layout"
	"rollscan/internal/logging"
	"rollscan/internal/rolls"
	"rollscan/internal/services"
)

// RollInfo is the resolved description of a roll: everything the pipeline
// needs to know before it touches the image.
type RollInfo struct {
	DRUID    string
	Title    string
	Type     rolls.Type
	ImageURL string
}

// Resolver combines the manifest client with the on-disk manifest cache.
type Resolver struct {
	client *Client
	layout layout.Layout
	logger *slog.Logger
}

// NewResolver creates a resolver over the given client and artifact layout.
func NewResolver(client *Client, lay layout.Layout, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		client: client,
		layout: lay,
		logger: logging.NewComponentLogger(logger, "manifest"),
	}
}

// Resolve returns the RollInfo for a DRUID. The cached manifest file is used
// unless redownload is set or no cache exists; a fresh download is written
// back to the cache atomically. The second return reports whether a download
// happened, including the refetch after a corrupt cache entry, so callers can
// tell a cache hit from a manifest that actually changed on disk. A
// typeOverride, when non-empty, replaces the type read from the manifest
// metadata.
func (r *Resolver) Resolve(ctx context.Context, druid string, redownload bool, typeOverride rolls.Type) (*RollInfo, bool, error) {
	doc, downloaded, err := r.document(ctx, druid, redownload)
	if err != nil {
		return nil, downloaded, err
	}

	imageURL, err := doc.ImageURL()
	if err != nil {
		return nil, downloaded, err
	}

	rollType := typeOverride
	if rollType == "" {
		rollType, err = doc.RollType()
		if err != nil {
			return nil, downloaded, err
		}
	}
	r.logger.InfoContext(ctx, "resolved roll",
		logging.String(logging.FieldDruid, druid),
		logging.String("roll_type", string(rollType)))

	return &RollInfo{
		DRUID:    druid,
		Title:    doc.Title(),
		Type:     rollType,
		ImageURL: imageURL,
	}, downloaded, nil
}

func (r *Resolver) document(ctx context.Context, druid string, redownload bool) (*Document, bool, error) {
	cachePath := r.layout.Path(druid, layout.KindManifest)

	if !redownload && r.layout.Complete(druid, layout.KindManifest) {
		data, err := os.ReadFile(cachePath)
		if err != nil {
			return nil, false, fmt.Errorf("read cached manifest: %w", err)
		}
		doc, err := Parse(data)
		if err == nil {
			return doc, false, nil
		}
		// A corrupt cache entry is not fatal; fall through to a fresh fetch.
		r.logger.WarnContext(ctx, "cached manifest unreadable, refetching",
			logging.String(logging.FieldDruid, druid),
			logging.Error(err))
	}

	r.logger.InfoContext(ctx, "downloading manifest",
		logging.String(logging.FieldDruid, druid),
		logging.String("url", r.client.ManifestURL(druid)))
	doc, raw, err := r.client.Fetch(ctx, druid)
	if err != nil {
		return nil, false, err
	}
	if _, err := layout.WriteAtomic(cachePath, bytes.NewReader(raw)); err != nil {
		return nil, false, services.Wrap(services.ErrValidation, "manifest", "cache", "write manifest cache", err)
	}
	return doc, true, nil
}
