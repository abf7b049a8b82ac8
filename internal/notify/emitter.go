package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/asquebay/canteen-orders/internal/model"
)

const readyTitle = "Order Ready! 🎉"

// Emitter показывает уведомления о готовых заказах
// на один тег приходится не больше одного активного уведомления
type Emitter struct {
	platform Platform
	log      *slog.Logger
	icon     string
	focus    func(tag string)

	mu       sync.Mutex
	state    Permission
	inflight chan struct{}
	active   map[string]Notification
}

// Option настраивает Emitter
type Option func(e *Emitter)

// WithIcon задаёт иконку уведомлений
func WithIcon(icon string) Option {
	return func(e *Emitter) { e.icon = icon }
}

// WithFocusHook задаёт действие при активации уведомления
func WithFocusHook(fn func(tag string)) Option {
	return func(e *Emitter) { e.focus = fn }
}

func NewEmitter(platform Platform, log *slog.Logger, opts ...Option) *Emitter {
	e := &Emitter{
		platform: platform,
		log:      log,
		focus:    func(string) {},
		state:    PermissionUnrequested,
		active:   make(map[string]Notification),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Permission возвращает текущее состояние разрешения
func (e *Emitter) Permission() Permission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RequestPermission запрашивает разрешение у платформы
// одновременные вызовы ждут один и тот же запрос; решённое разрешение повторно не запрашивается
func (e *Emitter) RequestPermission(ctx context.Context) (Permission, error) {
	const op = "notify.Emitter.RequestPermission"

	e.mu.Lock()
	switch {
	case e.state == PermissionGranted || e.state == PermissionDenied:
		state := e.state
		e.mu.Unlock()
		return state, nil
	case e.inflight != nil:
		wait := e.inflight
		e.mu.Unlock()
		select {
		case <-wait:
			return e.Permission(), nil
		case <-ctx.Done():
			return PermissionPending, fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	done := make(chan struct{})
	e.inflight = done
	e.state = PermissionPending
	e.mu.Unlock()

	state, err := e.platform.RequestPermission(ctx)
	if err != nil {
		// запрос не удался, но позже его можно повторить
		state = PermissionDefault
	}

	e.mu.Lock()
	e.state = state
	e.inflight = nil
	close(done)
	e.mu.Unlock()

	if err != nil {
		e.log.Warn("notification permission request failed", slog.String("op", op), slog.String("error", err.Error()))
		return state, fmt.Errorf("%s: %w", op, err)
	}
	e.log.Info("notification permission resolved", slog.String("op", op), slog.String("permission", string(state)))
	return state, nil
}

// NotifyReady сообщает студенту, что заказ готов
// без разрешения сначала запрашивает его и пробует ещё раз; ошибки только логируются
func (e *Emitter) NotifyReady(ctx context.Context, id model.OrderID, studentName string) {
	const op = "notify.Emitter.NotifyReady"
	log := e.log.With(slog.String("op", op), slog.String("tag", id.Tag()))

	n := Notification{
		Tag:                id.Tag(),
		Title:              readyTitle,
		Body:               fmt.Sprintf("Your order #%d is ready for pickup, %s!", id, studentName),
		Icon:               e.icon,
		RequireInteraction: true,
	}

	state := e.Permission()
	if state != PermissionGranted && state != PermissionDenied {
		var err error
		if state, err = e.RequestPermission(ctx); err != nil {
			return
		}
	}
	if state != PermissionGranted {
		log.Info("notification skipped", slog.String("permission", string(state)), slog.String("error", model.ErrPermissionDenied.Error()))
		return
	}

	e.mu.Lock()
	if _, ok := e.active[n.Tag]; ok {
		// уведомление с этим тегом уже показано, новое его заменяет
		e.active[n.Tag] = n
		e.mu.Unlock()
		log.Debug("notification replaced")
		return
	}
	e.active[n.Tag] = n
	e.mu.Unlock()

	if err := e.platform.Show(n); err != nil {
		e.mu.Lock()
		delete(e.active, n.Tag)
		e.mu.Unlock()
		log.Warn("failed to show notification", slog.String("error", err.Error()))
		return
	}
	log.Info("ready notification shown")
}

// Activate обрабатывает нажатие на уведомление: переводит фокус и закрывает его
func (e *Emitter) Activate(tag string) error {
	const op = "notify.Emitter.Activate"

	e.mu.Lock()
	_, ok := e.active[tag]
	delete(e.active, tag)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: notification %q: %w", op, tag, model.ErrNotFound)
	}

	e.focus(tag)
	if err := e.platform.Dismiss(tag); err != nil {
		e.log.Warn("failed to dismiss notification", slog.String("op", op), slog.String("tag", tag), slog.String("error", err.Error()))
	}
	return nil
}

// Withdraw снимает уведомление заказа, который больше не готов или удалён
// следующий переход в ready покажет уведомление заново
func (e *Emitter) Withdraw(id model.OrderID) {
	const op = "notify.Emitter.Withdraw"
	tag := id.Tag()

	e.mu.Lock()
	_, ok := e.active[tag]
	delete(e.active, tag)
	e.mu.Unlock()
	if !ok {
		return
	}

	if err := e.platform.Dismiss(tag); err != nil {
		e.log.Warn("failed to dismiss notification", slog.String("op", op), slog.String("tag", tag), slog.String("error", err.Error()))
		return
	}
	e.log.Debug("notification withdrawn", slog.String("op", op), slog.String("tag", tag))
}

// Active возвращает показанные и ещё не закрытые уведомления
func (e *Emitter) Active() []Notification {
	e.mu.Lock()
	out := make([]Notification, 0, len(e.active))
	for _, n := range e.active {
		out = append(out, n)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}
