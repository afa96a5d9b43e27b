package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"wamirror/internal/constants"
	"wamirror/internal/service"
)

// Watch ingests payload files as they are created or rewritten in the batch
// directory until ctx is cancelled. A file is ingested once no write event
// has arrived for it within the settle delay, so partially written files are
// not parsed.
func (b *Batch) Watch(ctx context.Context, settle time.Duration) error {
	if settle <= 0 {
		settle = time.Duration(constants.DefaultWatchSettleMs) * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(b.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", b.dir, err)
	}

	b.logger.WithField(service.LogFieldFilePath, b.dir).Info("Payload watcher started")

	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, timer := range pending {
			if timer.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if timer, ok := pending[path]; ok && timer.Stop() {
			timer.Reset(settle)
			return
		}
		wg.Add(1)
		var timer *time.Timer
		timer = time.AfterFunc(settle, func() {
			defer wg.Done()
			mu.Lock()
			if pending[path] == timer {
				delete(pending, path)
			}
			mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			_, _ = b.IngestFile(ctx, path)
		})
		pending[path] = timer
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Payload watcher stopping")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isPayloadFile(event.Name) {
				continue
			}
			b.logger.WithFields(logrus.Fields{
				service.LogFieldFileName: filepath.Base(event.Name),
				"op":                     event.Op.String(),
			}).Debug("Payload file changed")
			schedule(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			b.logger.WithError(err).Error("Payload watcher error")
		}
	}
}
