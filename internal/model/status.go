package model

import "fmt"

// Status — стадия жизненного цикла заказа
// хранилище принимает любую непустую строку, известные значения перечислены ниже
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
)

// разрешённые переходы для строгого режима: только вперёд и без пропусков
var transitions = map[Status]Status{
	StatusPending:    StatusInProgress,
	StatusInProgress: StatusReady,
}

// Known сообщает, является ли статус одним из стандартных
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusReady:
		return true
	}
	return false
}

// Validate отклоняет пустой статус, остальные значения пропускает
func (s Status) Validate() error {
	if s == "" {
		return fmt.Errorf("%w: status is required", ErrRejected)
	}
	return nil
}

// CanTransition проверяет переход from -> to
// повторная установка того же статуса считается допустимой
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return transitions[from] == to
}
