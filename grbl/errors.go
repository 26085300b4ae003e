package grbl

import (
	"errors"
	"fmt"
)

// Ошибки соединения и разбора.
var (
	// ErrNoPortFound - ни один кандидат не ответил узнаваемым токеном контроллера.
	ErrNoPortFound = errors.New("no responsive grbl port found")

	// ErrNotConnected - операция вызвана без открытого соединения.
	ErrNotConnected = errors.New("not connected to controller")

	// ErrLocationNotFound - в статусной строке нет ни WPos, ни пары MPos+WCO.
	ErrLocationNotFound = errors.New("no parsable position in status report")

	// ErrSettingsNotFound - настройки недоступны ни с контроллера, ни из локального файла.
	ErrSettingsNotFound = errors.New("controller settings unavailable")
)

// StatusError - контроллер сообщил об аварии или ошибке, и ограниченное
// восстановление не помогло. Несёт сырой ответ для диагностики.
type StatusError struct {
	Response string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("controller reported fault: %q", e.Response)
}

// CommandError оборачивает любой сбой ввода-вывода или протокола при выполнении команды.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// HomingError - ось исчерпала предел хода, так и не встретив концевик.
// В отличие от стандартного хоминга этот путь фатален и не продолжается молча.
type HomingError struct {
	Axis      string
	Travelled float64
}

func (e *HomingError) Error() string {
	return fmt.Sprintf("homing axis %s: no limit switch hit after %.0f mm of travel", e.Axis, e.Travelled)
}
