package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// signalContext is cancelled on interrupt or termination.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// watchSet maps the absolute paths of watched files to true. Directories
// are watched rather than files because editors often replace a file
// instead of writing to it.
type watchSet struct {
	files map[string]bool
	dirs  []string
}

func newWatchSet(paths ...string) (*watchSet, error) {
	ws := &watchSet{files: make(map[string]bool)}
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		ws.files[abs] = true
		dir := filepath.Dir(abs)
		if !seen[dir] {
			seen[dir] = true
			ws.dirs = append(ws.dirs, dir)
		}
	}
	return ws, nil
}

// relevant reports whether an event touches a watched file.
func (ws *watchSet) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return ws.files[abs]
}

// watch validates once and again after every change to the task or a
// plan, until ctx is cancelled.
func (r *runner) watch(ctx context.Context, taskPath string, planPaths []string, debounce time.Duration) error {
	ws, err := newWatchSet(append([]string{taskPath}, planPaths...)...)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	for _, dir := range ws.dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	r.validateOnce(ctx, taskPath, planPaths)

	// pending fires once the files have been quiet for the debounce period
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ws.relevant(event) {
				r.logger.Debug("file changed", map[string]interface{}{"path": event.Name, "op": event.Op.String()})
				pending = time.After(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", map[string]interface{}{"error": err.Error()})

		case <-pending:
			pending = nil
			fmt.Fprintf(r.out, "\n%s re-validating\n", time.Now().Format("15:04:05"))
			r.validateOnce(ctx, taskPath, planPaths)
		}
	}
}

// validateOnce runs one validation round. Rejections and load errors are
// printed and do not end the watch.
func (r *runner) validateOnce(ctx context.Context, taskPath string, planPaths []string) {
	err := r.run(ctx, taskPath, planPaths)
	switch {
	case err == nil, errors.Is(err, errRejected), errors.Is(err, context.Canceled):
	default:
		fmt.Fprintf(r.out, "ERROR %v\n", err)
	}
}

// Run validates the plans and keeps watching them.
func (c *WatchCmd) Run() error {
	r, err := newRunner(&c.ValidateCmd, os.Stdout)
	if err != nil {
		return err
	}
	defer r.close()
	if err := r.setup(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	return r.watch(ctx, c.Task, c.Plans, c.Debounce)
}
