package store

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// SeedWatcher re-imports the seed file into the config DB whenever it
// changes and then calls onChange.
type SeedWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	db       *ConfigDB
	onChange func()
}

func NewSeedWatcher(path string, db *ConfigDB, onChange func()) (*SeedWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &SeedWatcher{watcher: w, path: filepath.Clean(path), db: db, onChange: onChange}, nil
}

// Reload imports the seed file once.
func (w *SeedWatcher) Reload(ctx context.Context) error {
	seed, err := LoadSeed(w.path)
	if err != nil {
		return err
	}
	if err := w.db.Import(ctx, seed); err != nil {
		return err
	}
	log.Printf("[INFO] seed %s imported: %d assistants, %d provider configs", w.path, len(seed.Assistants), len(seed.Providers))
	if w.onChange != nil {
		w.onChange()
	}
	return nil
}

// Watch следит за каталогом seed-файла: редакторы часто заменяют файл целиком
func (w *SeedWatcher) Watch(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go func() {
		var timer *time.Timer
		fire := make(chan struct{}, 1)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				if err := w.Reload(ctx); err != nil {
					log.Printf("[WARN] seed reload failed, keeping previous config: %v", err)
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[WARN] seed watcher: %v", err)
			}
		}
	}()
	return nil
}

func (w *SeedWatcher) Stop() error {
	return w.watcher.Close()
}
