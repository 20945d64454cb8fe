package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/arcwell/mcpengine/mcp"
)

// DirWatcher mirrors the files under an OS directory into a
// ResourceRegistry and keeps the listing fresh with fsnotify. File
// contents are read at resource-read time, so only create/remove/rename
// events matter for the registry.
type DirWatcher struct {
	reg     *ResourceRegistry
	root    string
	baseURI string
	log     *slog.Logger
}

// DirOption customizes a DirWatcher.
type DirOption func(*DirWatcher)

// WithDirBaseURI sets the URI prefix for served files (default "file://<root>/").
func WithDirBaseURI(base string) DirOption {
	return func(w *DirWatcher) { w.baseURI = strings.TrimSuffix(base, "/") + "/" }
}

// WithDirLogger sets the logger for watch errors.
func WithDirLogger(log *slog.Logger) DirOption {
	return func(w *DirWatcher) { w.log = log }
}

// WatchDir scans root into reg and starts a watcher that tracks file
// creation and removal until ctx is cancelled.
func WatchDir(ctx context.Context, reg *ResourceRegistry, root string, opts ...DirOption) (*DirWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	w := &DirWatcher{
		reg:     reg,
		root:    abs,
		baseURI: "file://" + abs + "/",
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	dirs, err := w.scan()
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start directory watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			w.log.Debug("registry.dirwatch.add_failed",
				slog.String("dir", dir),
				slog.String("err", err.Error()),
			)
		}
	}

	go w.run(ctx, watcher)
	return w, nil
}

// scan walks the tree, registering every regular file, and returns the
// directories to watch.
func (w *DirWatcher) scan() ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		w.register(path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", w.root, err)
	}
	return dirs, nil
}

func (w *DirWatcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			switch {
			case ev.Op&fsnotify.Create != 0:
				if info, err := os.Stat(ev.Name); err == nil {
					if info.IsDir() {
						// Watch new subtrees as they appear.
						_ = watcher.Add(ev.Name)
					} else {
						w.register(ev.Name)
					}
				}
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.reg.Remove(w.uriFor(ev.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Debug("registry.dirwatch.error", slog.String("err", err.Error()))
		}
	}
}

func (w *DirWatcher) register(path string) {
	uri := w.uriFor(path)
	if uri == "" {
		return
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	w.reg.Register(StaticResource{
		Descriptor: mcp.Resource{
			URI:      uri,
			Name:     filepath.Base(path),
			MimeType: mimeType,
		},
		Reader: func() ([]mcp.ResourceContents, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
				}
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			contents := mcp.ResourceContents{URI: uri, MimeType: mimeType}
			if isTextMime(mimeType) {
				contents.Text = string(data)
			} else {
				contents.Blob = base64.StdEncoding.EncodeToString(data)
			}
			return []mcp.ResourceContents{contents}, nil
		},
	})
}

func (w *DirWatcher) uriFor(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return w.baseURI + filepath.ToSlash(rel)
}

func isTextMime(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch {
	case strings.Contains(mimeType, "json"),
		strings.Contains(mimeType, "xml"),
		strings.Contains(mimeType, "javascript"):
		return true
	}
	return false
}
