package model

import "errors"

// общие ошибки, на которые опираются сервис и транспорт
var (
	// ErrTransport — хранилище недоступно (сеть, таймаут, блокировка файла)
	ErrTransport = errors.New("backend unavailable")
	// ErrRejected — хранилище или валидация отклонили запись
	ErrRejected = errors.New("write rejected")
	// ErrNotFound — операция над неизвестным заказом
	ErrNotFound = errors.New("order not found")
	// ErrPermissionDenied — уведомления запрещены или не поддерживаются
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrInvalidTransition — переход статуса запрещён строгим режимом
	ErrInvalidTransition = errors.New("invalid status transition")
)
