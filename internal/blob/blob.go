// Package blob stores planting and growth-update photos.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"

	"treeadopt/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Object is a stored blob.
type Object struct {
	URL        string
	ExternalID string
}

// Store uploads and removes blobs.
type Store interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (Object, error)
	Delete(ctx context.Context, externalID string) error
}

// maxParallelUploads bounds concurrent uploads for one request.
const maxParallelUploads = 5

// UploadAll stores every upload under prefix concurrently and returns the
// objects in input order. If any upload fails, blobs that were already
// stored are deleted before the error is returned.
func UploadAll(ctx context.Context, store Store, prefix string, uploads []model.Upload, logger zerolog.Logger) ([]Object, error) {
	objects := make([]Object, len(uploads))
	stored := make([]bool, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for i, u := range uploads {
		g.Go(func() error {
			obj, err := store.Upload(gctx, ObjectKey(prefix, u.Filename), u.ContentType, u.Data)
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", u.Filename, err)
			}
			objects[i] = obj
			stored[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var orphans []Object
		for i, ok := range stored {
			if ok {
				orphans = append(orphans, objects[i])
			}
		}
		DeleteAll(context.WithoutCancel(ctx), store, orphans, logger)
		return nil, err
	}

	return objects, nil
}

// DeleteAll removes objects, logging failures. Cleanup never fails the caller.
func DeleteAll(ctx context.Context, store Store, objects []Object, logger zerolog.Logger) {
	for _, obj := range objects {
		if err := store.Delete(ctx, obj.ExternalID); err != nil {
			logger.Warn().
				Err(err).
				Str("external_id", obj.ExternalID).
				Msg("failed to delete orphaned blob")
		}
	}
}

// ObjectKey builds a unique key under prefix that keeps the file extension.
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join(prefix, uuid.NewString()+ext)
}
