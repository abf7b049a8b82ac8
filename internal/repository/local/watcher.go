package local

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asquebay/canteen-orders/internal/service"
)

const defaultDebounce = 50 * time.Millisecond

// Watcher следит за файлом хранилища и сообщает о записях других процессов
// собственные записи процесса сигнал не вызывают
type Watcher struct {
	repo     *OrderRepository
	log      *slog.Logger
	debounce time.Duration
}

// NewWatcher создает наблюдатель за файлом локального хранилища
func NewWatcher(repo *OrderRepository, log *slog.Logger) *Watcher {
	return &Watcher{repo: repo, log: log, debounce: defaultDebounce}
}

// Subscribe запускает наблюдение; onChange вызывается из отдельной горутины
func (w *Watcher) Subscribe(ctx context.Context, onChange func()) (service.Subscription, error) {
	const op = "repository.local.Watcher.Subscribe"

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// следим за каталогом: файла может ещё не быть
	if err := fw.Add(filepath.Dir(w.repo.Path())); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &watchSubscription{fw: fw, cancel: cancel}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		w.run(ctx, fw, onChange)
	}()

	w.log.Info("watching local store for foreign writes", slog.String("path", w.repo.Path()))
	return sub, nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, onChange func()) {
	log := w.log.With(slog.String("component", "local_watcher"))
	target := filepath.Clean(w.repo.Path())

	// пачку событий от одной транзакции сводим в одну проверку
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Warn("fsnotify error", slog.String("error", err.Error()))
		case <-timer.C:
			foreign, err := w.repo.foreignWrite(ctx)
			if err != nil {
				log.Warn("failed to read store revision", slog.String("error", err.Error()))
				continue
			}
			if foreign {
				log.Debug("foreign write detected")
				onChange()
			}
		}
	}
}

type watchSubscription struct {
	fw     *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	err    error
}

func (s *watchSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.fw.Close()
		s.wg.Wait()
	})
	return s.err
}
