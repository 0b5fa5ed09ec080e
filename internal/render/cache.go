package render

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stencilbot/stencilbot/internal/events"
	"github.com/stencilbot/stencilbot/internal/log"
	"github.com/stencilbot/stencilbot/internal/state"
)

// ArtifactExt is the target image extension for rendered artifacts.
const ArtifactExt = ".jpg"

// Request is a render request: the raw input text plus its positional
// argument list. Args[0] is always the full original string.
type Request struct {
	Text string
	Args []string
}

// NewRequest builds a Request by splitting text on "/".
func NewRequest(text string) Request {
	return Request{
		Text: text,
		Args: append([]string{text}, strings.Split(text, "/")...),
	}
}

// Key derives the artifact identifier for a (template, text) pair:
// urlsafe base64 (no padding) of sha256(template + "|" + text).
func Key(templateName, text string) string {
	sum := sha256.Sum256([]byte(templateName + "|" + text))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// StageRenderer produces an artifact file from a template source.
type StageRenderer interface {
	Render(ctx context.Context, templatePath, outPath string, args []string) error
}

// Recorder receives render attempts for the audit log. A nil Recorder
// disables recording.
type Recorder interface {
	RecordRender(ctx context.Context, rec state.RenderRecord) error
}

// Cache memoizes rendered artifacts on disk, keyed by content hash.
// Existence of the artifact file is the cache-hit signal; there is no index.
// A failed render records nothing, so the next identical request retries.
//
// Concurrent identical misses within this process are collapsed to a single
// render via singleflight. A second process sharing the artifact directory
// could still render the same key concurrently; that is tolerated because
// rendering is deterministic and the final write is an atomic rename.
type Cache struct {
	dir      string
	renderer StageRenderer
	recorder Recorder
	hub      *events.Hub
	group    singleflight.Group
	logger   *slog.Logger
}

// NewCache creates a Cache writing artifacts into dir. recorder and hub may
// be nil.
func NewCache(dir string, renderer StageRenderer, recorder Recorder, hub *events.Hub) *Cache {
	return &Cache{
		dir:      dir,
		renderer: renderer,
		recorder: recorder,
		hub:      hub,
		logger:   log.WithComponent("cache"),
	}
}

// GetOrRender returns the artifact identifier for (templateName, req),
// rendering it if the artifact does not exist yet. It reports ok=false when
// the render failed; failures are logged, never returned.
func (c *Cache) GetOrRender(ctx context.Context, templateName, templatePath string, req Request) (string, bool) {
	key := Key(templateName, req.Text)
	artifactPath := filepath.Join(c.dir, key+ArtifactExt)

	if fileExists(artifactPath) {
		c.logger.Debug("cache hit", "template", templateName, "key", key)
		return key, true
	}

	_, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent flight may have produced the artifact while this
		// caller waited on the group.
		if fileExists(artifactPath) {
			return nil, nil
		}

		start := time.Now()
		renderErr := c.renderer.Render(ctx, templatePath, artifactPath, req.Args)
		c.record(ctx, templateName, key, renderErr, time.Since(start))
		if renderErr == nil && c.hub != nil {
			c.hub.Publish(events.TypeRenderCompleted, map[string]any{
				"template":    templateName,
				"key":         key,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		}
		return nil, renderErr
	})
	if err != nil {
		log.WithTemplate(templateName).Warn("render failed", "key", key, "error", err)
		return "", false
	}
	return key, true
}

// Path returns the on-disk location for an artifact identifier.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, key+ArtifactExt)
}

func (c *Cache) record(ctx context.Context, templateName, key string, renderErr error, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}

	rec := state.RenderRecord{
		Template:    templateName,
		ArtifactKey: key,
		Status:      state.RenderSucceeded,
		Duration:    elapsed,
	}
	if renderErr != nil {
		rec.Status = state.RenderFailed
		rec.Error = renderErr.Error()
	}
	if err := c.recorder.RecordRender(ctx, rec); err != nil {
		c.logger.Warn("failed to record render", "template", templateName, "error", err)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
