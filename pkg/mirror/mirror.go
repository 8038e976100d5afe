package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"thingmirror/internal/workerpool"
	errs "thingmirror/pkg/errors"
	"thingmirror/pkg/logger"
	"thingmirror/pkg/metadata"
	"thingmirror/pkg/storage"
	"thingmirror/pkg/thingiverse"
)

const (
	// only this rendition of each image is kept
	imageType = "display"
	imageSize = "large"
)

// Options controls which things are mirrored
type Options struct {
	// End is the last id to mirror; 0 means no limit.
	End uint64
}

// Stats is a snapshot of what a Mirrorer has written
type Stats struct {
	Things     int64
	Images     int64
	Files      int64
	Bytes      int64
	Unreadable int64
}

// Mirrorer mirrors one thing per call
type Mirrorer struct {
	api    API
	store  *storage.Manager
	logger logger.Logger
	opts   Options

	images     atomic.Int64
	files      atomic.Int64
	bytes      atomic.Int64
	unreadable atomic.Int64
}

// New creates a Mirrorer writing into store
func New(api API, store *storage.Manager, log logger.Logger, opts Options) *Mirrorer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Mirrorer{api: api, store: store, logger: log, opts: opts}
}

// Unit adapts Mirror to the worker pool
func (m *Mirrorer) Unit() workerpool.Unit {
	return m.Mirror
}

// Mirror fetches thing id and everything it references. It reports
// Changed only when a new thing directory was published. Missing or
// hidden things, and things already on disk, are not errors.
func (m *Mirrorer) Mirror(ctx context.Context, id uint64, attempt int) (workerpool.Outcome, error) {
	if m.opts.End > 0 && id > m.opts.End {
		return workerpool.Outcome{Done: true}, nil
	}

	log := m.logger.WithFields(map[string]interface{}{
		"id":      id,
		"attempt": attempt,
	})
	log.Trace("mirroring thing")

	thing, err := m.api.GetThing(ctx, id)
	if err != nil {
		if errs.IsSkippable(err) {
			log.DebugWithFields("thing unavailable", map[string]interface{}{
				"reason": string(errs.TypeOf(err)),
			})
			return workerpool.Outcome{}, nil
		}
		return workerpool.Outcome{}, fmt.Errorf("get thing %d: %w", id, err)
	}

	exists, err := m.store.Exists(id)
	if err != nil {
		return workerpool.Outcome{}, err
	}
	if exists {
		log.Debug("thing already mirrored")
		return workerpool.Outcome{}, nil
	}

	images, err := m.api.GetImages(ctx, thing.ImagesURL)
	if err != nil {
		return workerpool.Outcome{}, fmt.Errorf("get images of thing %d: %w", id, err)
	}
	files, err := m.api.GetFiles(ctx, thing.FilesURL)
	if err != nil {
		return workerpool.Outcome{}, fmt.Errorf("get files of thing %d: %w", id, err)
	}

	staging, err := m.store.Stage(id)
	if err != nil {
		return workerpool.Outcome{}, err
	}

	if err := m.fill(ctx, log, staging, thing.ID, metadata.FromAPI(thing), images, files); err != nil {
		if discardErr := staging.Discard(); discardErr != nil {
			log.WithError(discardErr).Warn("failed to discard staging directory")
		}
		return workerpool.Outcome{}, err
	}

	if err := staging.Commit(); err != nil {
		if errors.Is(err, storage.ErrAlreadyMirrored) {
			log.Debug("thing already mirrored")
			return workerpool.Outcome{}, nil
		}
		return workerpool.Outcome{}, err
	}

	log.InfoWithFields("thing mirrored", map[string]interface{}{
		"name":   thing.Name,
		"images": len(images),
		"files":  len(files),
	})
	return workerpool.Outcome{Changed: true}, nil
}

func (m *Mirrorer) fill(ctx context.Context, log logger.Logger, staging *storage.Staging, id uint64,
	meta *metadata.Thing, images []thingiverse.Image, files []thingiverse.File) error {
	if err := meta.Save(staging.Dir()); err != nil {
		return err
	}

	for _, image := range images {
		url, ok := image.Rendition(imageType, imageSize)
		if !ok {
			continue
		}
		saved, err := m.download(ctx, log, url, staging.ImagesDir(), image.Name, image.ID)
		if err != nil {
			return fmt.Errorf("download image %d of thing %d: %w", image.ID, id, err)
		}
		if saved {
			m.images.Add(1)
		}
	}

	for _, file := range files {
		saved, err := m.download(ctx, log, file.DownloadURL(), staging.FilesDir(), file.Name, file.ID)
		if err != nil {
			return fmt.Errorf("download file %d of thing %d: %w", file.ID, id, err)
		}
		if saved {
			m.files.Add(1)
		}
	}
	return nil
}

// download saves url into dir. A 404 or 403 is not an error; nothing is
// written and saved is false.
func (m *Mirrorer) download(ctx context.Context, log logger.Logger, url, dir, name string, assetID uint64) (bool, error) {
	path := uniquePath(dir, storage.Filename(name), assetID)

	var written int64
	err := storage.SaveStream(path, func(w io.Writer) error {
		n, err := m.api.Download(ctx, url, w)
		written = n
		return err
	})
	if err != nil {
		if errs.IsSkippable(err) {
			m.unreadable.Add(1)
			log.DebugWithFields("asset unavailable", map[string]interface{}{
				"url":    url,
				"reason": string(errs.TypeOf(err)),
			})
			return false, nil
		}
		return false, err
	}

	m.bytes.Add(written)
	return true, nil
}

// uniquePath prefixes the asset id when two assets of a thing share a name.
func uniquePath(dir, name string, assetID uint64) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(dir, strconv.FormatUint(assetID, 10)+"-"+name)
	}
	return path
}

// Stats returns what has been written so far. Things counts directories
// the store committed.
func (m *Mirrorer) Stats() Stats {
	return Stats{
		Things:     m.store.CommittedCount(),
		Images:     m.images.Load(),
		Files:      m.files.Load(),
		Bytes:      m.bytes.Load(),
		Unreadable: m.unreadable.Load(),
	}
}
