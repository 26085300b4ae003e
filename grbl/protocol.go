package grbl

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/iwtcode/grblAdapter/models"
)

// Управляющие байты протокола GRBL. Статусный запрос и команды реального
// времени отправляются одним байтом без завершающего перевода строки.
const (
	byteStatusQuery byte = '?'
	byteFeedHold    byte = '!'
	byteCycleStart  byte = '~'
	byteSoftReset   byte = 0x18
)

const (
	cmdHoming       = "$H"
	cmdUnlock       = "$X"
	cmdSettingsDump = "$$"
)

// Execute отправляет одну команду и синхронно читает ответ.
//
// Команда приводится к верхнему регистру и завершается переводом строки;
// исключение - однобайтовый статусный запрос "?", уходящий как есть.
// Для обычных (не начинающихся с "$") команд после ответа выполняется
// ожидание состояния Idle: контроллер отвечает "ok" при приёме строки,
// а не при завершении движения.
//
// Ответ error:22 (не задана подача) исправляется повторной установкой
// подачи по умолчанию и ровно одним повтором той же команды.
//
// При suppressErrors ответ с ошибкой или аварией возвращается вызывающему
// как есть; иначе авария проходит через единую точку восстановления, и
// неустранимый сбой поднимается как *StatusError.
func (a *GrblAdapter) Execute(command string, suppressErrors bool) (string, error) {
	if a.conn == nil {
		return "", ErrNotConnected
	}

	cmd := strings.ToUpper(strings.TrimSpace(command))
	if cmd == string(byteStatusQuery) {
		return a.statusLine()
	}
	if cmd == cmdSettingsDump {
		if _, err := a.refreshSettings(); err != nil {
			return "", &CommandError{Command: cmd, Err: err}
		}
		return "ok", nil
	}

	var resp string
	feedRetried := false
	err := withRetry(2, 0, func() (bool, error) {
		r, err := a.exchange(cmd)
		if err != nil {
			return false, err
		}
		resp = r
		if strings.Contains(r, "error:22") && !feedRetried {
			feedRetried = true
			a.logger.Warnf("Контроллер ответил error:22, восстанавливаю подачу %.1f и повторяю %q", a.feedRate, cmd)
			if _, ferr := a.exchange(fmt.Sprintf("F%.1f", a.feedRate)); ferr != nil {
				return false, ferr
			}
			return true, fmt.Errorf("feed rate was not set")
		}
		return false, nil
	})
	if err != nil {
		return "", &CommandError{Command: cmd, Err: err}
	}

	state := ""
	if !strings.HasPrefix(cmd, "$") && !containsFault(resp) {
		st, werr := a.waitForIdle(a.commandTimeout)
		if werr != nil {
			if suppressErrors {
				return resp, nil
			}
			return resp, &CommandError{Command: cmd, Err: werr}
		}
		state = st
	}

	if containsFault(resp) || state == models.StateAlarm {
		if suppressErrors {
			return resp, nil
		}
		if containsAlarm(resp) || state == models.StateAlarm {
			if rerr := a.recoverFromAlarm(resp); rerr != nil {
				return resp, rerr
			}
			return resp, nil
		}
		return resp, &StatusError{Response: resp}
	}

	return resp, nil
}

// exchange пишет строку и возвращает первую ответную строку, пропуская
// статусные отчёты, сообщения в скобках и баннеры прошивки.
func (a *GrblAdapter) exchange(cmd string) (string, error) {
	if err := a.writeLine(cmd); err != nil {
		return "", err
	}
	deadline := time.Now().Add(a.readTimeout)
	for {
		line, err := a.readLine(time.Until(deadline))
		if err != nil {
			return "", err
		}
		if line == "" || strings.HasPrefix(line, "<") ||
			strings.HasPrefix(line, "[") || strings.HasPrefix(line, "Grbl") {
			continue
		}
		return line, nil
	}
}

// waitForIdle опрашивает статус, пока станок не доложит Idle либо Alarm.
// Нечитаемые статусные строки пропускаются: очередная команда "?" даёт
// свежую попытку.
func (a *GrblAdapter) waitForIdle(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		snap, err := a.QueryStatus()
		if err == nil {
			switch snap.State {
			case models.StateIdle, models.StateAlarm:
				return snap.State, nil
			}
		}
		if time.Now().After(deadline) {
			return models.StateUnknown, fmt.Errorf("machine did not reach idle within %s", timeout)
		}
		time.Sleep(a.idlePoll)
	}
}

// QueryStatus запрашивает и разбирает один статусный отчёт.
func (a *GrblAdapter) QueryStatus() (*models.MachineSnapshot, error) {
	raw, err := a.statusLine()
	if err != nil {
		return nil, err
	}
	return ParseStatus(raw)
}

// statusLine отправляет "?" и возвращает первую строку вида "<...>".
func (a *GrblAdapter) statusLine() (string, error) {
	if a.conn == nil {
		return "", ErrNotConnected
	}
	if err := a.writeByte(byteStatusQuery); err != nil {
		return "", err
	}
	deadline := time.Now().Add(a.readTimeout)
	for {
		line, err := a.readLine(time.Until(deadline))
		if err != nil {
			return "", fmt.Errorf("no status report: %w", err)
		}
		if strings.HasPrefix(line, "<") {
			return line, nil
		}
	}
}

// FeedHold отправляет байт паузы подачи "!". Лучшее из возможного:
// контроллер не подтверждает команды реального времени.
func (a *GrblAdapter) FeedHold() error {
	if a.conn == nil {
		return ErrNotConnected
	}
	return a.writeByte(byteFeedHold)
}

// CycleStart отправляет байт возобновления "~": снимает паузу подачи и
// продолжает прерванное движение.
func (a *GrblAdapter) CycleStart() error {
	if a.conn == nil {
		return ErrNotConnected
	}
	return a.writeByte(byteCycleStart)
}

// SoftReset отправляет мягкий сброс (^X). После сброса позиция считается
// недостоверной, поэтому флаг homed снимается.
func (a *GrblAdapter) SoftReset() error {
	if a.conn == nil {
		return ErrNotConnected
	}
	a.homed = false
	a.pending = nil
	return a.writeByte(byteSoftReset)
}

// unlock снимает аварийную блокировку ($X). Ответ логируется, но не
// считается ошибкой: вызывающий сам проверяет статус после разблокировки.
func (a *GrblAdapter) unlock() {
	resp, err := a.exchange(cmdUnlock)
	if err != nil {
		a.logger.Warnf("Разблокировка $X не получила ответа: %v", err)
		return
	}
	a.logger.Debugf("Разблокировка $X: %s", resp)
}

func (a *GrblAdapter) writeLine(cmd string) error {
	if _, err := a.conn.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

func (a *GrblAdapter) writeByte(b byte) error {
	if _, err := a.conn.Write([]byte{b}); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// readLine читает одну строку, сохраняя недочитанный хвост между вызовами.
func (a *GrblAdapter) readLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if i := bytes.IndexByte(a.pending, '\n'); i >= 0 {
			line := strings.TrimRight(string(a.pending[:i]), "\r")
			a.pending = a.pending[i+1:]
			return line, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("serial read timed out after %s", timeout)
		}
		if err := a.conn.SetReadTimeout(remaining); err != nil {
			return "", fmt.Errorf("serial read deadline: %w", err)
		}
		buf := make([]byte, 256)
		n, err := a.conn.Read(buf)
		if err != nil {
			return "", fmt.Errorf("serial read: %w", err)
		}
		if n > 0 {
			a.pending = append(a.pending, buf[:n]...)
		}
	}
}

func containsAlarm(s string) bool {
	return strings.Contains(strings.ToLower(s), "alarm")
}

func containsFault(s string) bool {
	ls := strings.ToLower(s)
	return strings.Contains(ls, "alarm") || strings.Contains(ls, "error")
}
