package config

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

const pollInterval = 60 * time.Second

// Watch reloads the config file on change and invokes onReload with the new
// config. fsnotify is the primary mechanism; a slow mtime poll runs as a
// safety net for filesystems that drop events.
func Watch(ctx context.Context, path string, onReload func(*Config)) {
	reload := func(reason string) {
		cfg, err := Load(path)
		if err != nil {
			log.Printf("[Config] reload (%s) failed, keeping previous: %v", reason, err)
			return
		}
		log.Printf("[Config] reloaded (%s)", reason)
		onReload(cfg)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[Config] fsnotify unavailable (%v), polling only", err)
	} else if err := watcher.Add(path); err != nil {
		log.Printf("[Config] cannot watch %s (%v), polling only", path, err)
		watcher.Close()
		watcher = nil
	}

	if watcher != nil {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						// brief debounce so editors finish writing
						time.Sleep(100 * time.Millisecond)
						reload("fsnotify")
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("[Config] watcher error: %v", err)
				}
			}
		}()
	}

	go func() {
		var lastMod time.Time
		if info, err := os.Stat(path); err == nil {
			lastMod = info.ModTime()
		}
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if info.ModTime().After(lastMod) {
					lastMod = info.ModTime()
					reload("poll")
				}
			}
		}
	}()
}
