package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/shadertoggle/internal/logx"
)

// Watch calls fn with the reloaded configuration every time the file at
// path is written or replaced, until ctx is done. Load errors are passed to
// fn as well. A configuration with PreventRuntimeReload set is still
// reported; callers decide whether to apply it.
//
// The directory is watched rather than the file so that editors replacing
// the file by rename keep being followed.
func Watch(ctx context.Context, path string, fn func(*Config, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	logx.L().Debug("config: watching", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != abs || !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				continue
			}
			c, err := Load(abs)
			fn(c, err)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logx.L().Warn("config: watch error", "path", abs, "err", err)
		}
	}
}
