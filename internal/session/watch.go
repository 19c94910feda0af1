package session

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// Watch follows changes to the token file made by other processes and
// re-runs Resume when the stored token no longer matches the session.
// It blocks until ctx is cancelled. The parent directory is watched because
// token writes replace the file by rename.
func (s *Session) Watch(ctx context.Context, tokenPath string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(tokenPath)
	name := filepath.Base(tokenPath)
	if err := w.Add(dir); err != nil {
		return err
	}
	s.logger.Debug("session: watching token", slog.String("path", tokenPath))

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case <-fire:
			fire = nil
			s.syncFromStore(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("session: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

func (s *Session) syncFromStore(ctx context.Context) {
	stored, err := s.store.Token()
	if err != nil {
		s.logger.Warn("session: read token failed", slog.String("error", err.Error()))
		return
	}
	snap := s.Snapshot()
	if stored == snap.Token && snap.State != StateLoading {
		return
	}
	s.logger.Info("session: token changed externally")
	if err := s.Resume(ctx); err != nil {
		s.logger.Warn("session: resume failed", slog.String("error", err.Error()))
	}
}
