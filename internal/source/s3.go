package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// S3Source polls {prefix}{eventId}.json objects and re-reads those whose ETag
// changed since the last poll.
type S3Source struct {
	reader   domain.BlobReader
	prefix   string
	interval time.Duration
	logger   *slog.Logger

	etags map[string]string
}

// NewS3Source creates a source listing prefix every interval.
func NewS3Source(reader domain.BlobReader, prefix string, interval time.Duration, logger *slog.Logger) *S3Source {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &S3Source{
		reader:   reader,
		prefix:   prefix,
		interval: interval,
		logger:   logger.With(slog.String("component", "s3_source")),
		etags:    make(map[string]string),
	}
}

func (s *S3Source) Name() string { return "s3" }

// Run polls until ctx is done. A failed poll is logged and retried on the
// next tick.
func (s *S3Source) Run(ctx context.Context, h Handler) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Poll(ctx, h); err != nil && ctx.Err() == nil {
			s.logger.WarnContext(ctx, "snapshot poll failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll lists the prefix once and delivers every changed object. An object
// whose handler fails keeps its old ETag so it is delivered again. It
// returns the number of snapshots delivered.
func (s *S3Source) Poll(ctx context.Context, h Handler) (int, error) {
	objects, err := s.reader.List(ctx, s.prefix)
	if err != nil {
		return 0, fmt.Errorf("s3 source: list %s: %w", s.prefix, err)
	}
	delivered := 0
	for _, obj := range objects {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if !strings.HasSuffix(obj.Path, ".json") {
			continue
		}
		tag := obj.ETag
		if tag == "" {
			tag = obj.LastModified.String()
		}
		if s.etags[obj.Path] == tag {
			continue
		}

		snap, err := s.read(ctx, obj.Path)
		if err != nil {
			s.logger.WarnContext(ctx, "snapshot object unreadable",
				slog.String("path", obj.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if snap.EventID == "" {
			snap.EventID = strings.TrimSuffix(path.Base(obj.Path), ".json")
		}
		if err := dispatch(ctx, s.logger, h, snap); err != nil {
			continue
		}
		s.etags[obj.Path] = tag
		delivered++
	}
	return delivered, nil
}

func (s *S3Source) read(ctx context.Context, p string) (domain.GameSnapshot, error) {
	rc, err := s.reader.Get(ctx, p)
	if err != nil {
		return domain.GameSnapshot{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.GameSnapshot{}, fmt.Errorf("read %s: %w", p, err)
	}
	return decodeSnapshot(data)
}
