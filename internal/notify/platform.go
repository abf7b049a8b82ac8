package notify

import (
	"context"
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Permission — состояние разрешения на показ уведомлений
type Permission string

const (
	PermissionUnrequested Permission = "unrequested"
	PermissionPending     Permission = "pending"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
	// PermissionDefault — пользователь закрыл запрос, не ответив
	PermissionDefault Permission = "default"
)

// Notification — уведомление, которое показывает платформа
type Notification struct {
	Tag                string `json:"tag"`
	Title              string `json:"title"`
	Body               string `json:"body"`
	Icon               string `json:"icon,omitempty"`
	RequireInteraction bool   `json:"requireInteraction"`
}

// Platform — системный механизм уведомлений
type Platform interface {
	RequestPermission(ctx context.Context) (Permission, error)
	Show(n Notification) error
	Dismiss(tag string) error
}

// Desktop показывает уведомления рабочего стола через beeep
// у настольных систем нет отдельного запроса разрешения
type Desktop struct{}

func (Desktop) RequestPermission(context.Context) (Permission, error) {
	return PermissionGranted, nil
}

func (Desktop) Show(n Notification) error {
	if n.RequireInteraction {
		// Alert дополнительно подаёт звуковой сигнал
		return beeep.Alert(n.Title, n.Body, n.Icon)
	}
	return beeep.Notify(n.Title, n.Body, n.Icon)
}

// Dismiss ничего не делает: beeep не умеет убирать показанные уведомления
func (Desktop) Dismiss(string) error { return nil }

// LogPlatform пишет уведомления в лог, подходит для серверов без рабочего стола
type LogPlatform struct {
	Log *slog.Logger
}

func (p LogPlatform) RequestPermission(context.Context) (Permission, error) {
	return PermissionGranted, nil
}

func (p LogPlatform) Show(n Notification) error {
	p.Log.Info("notification",
		slog.String("tag", n.Tag),
		slog.String("title", n.Title),
		slog.String("body", n.Body),
	)
	return nil
}

func (p LogPlatform) Dismiss(tag string) error {
	p.Log.Debug("notification dismissed", slog.String("tag", tag))
	return nil
}
