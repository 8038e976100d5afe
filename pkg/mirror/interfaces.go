package mirror

import (
	"context"
	"io"

	"thingmirror/pkg/thingiverse"
)

// API defines the remote operations needed to mirror a thing
type API interface {
	GetThing(ctx context.Context, id uint64) (*thingiverse.Thing, error)
	GetImages(ctx context.Context, imagesURL string) ([]thingiverse.Image, error)
	GetFiles(ctx context.Context, filesURL string) ([]thingiverse.File, error)
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}
