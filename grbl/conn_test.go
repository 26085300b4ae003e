package grbl

import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// fakeConn - скриптованная заглушка контроллера. Каждая записанная строка
// ищется в сценарии; не заскриптованные команды получают "ok". Байт "?"
// отдаёт очередную статусную строку, последняя повторяется бесконечно.
type fakeConn struct {
	mu     sync.Mutex
	out    bytes.Buffer
	writes []string
	lines  []string
	script map[string][]string
	status []string
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		script: map[string][]string{},
		status: []string{"<Idle|WPos:0.000,0.000,0.000|FS:0,0>"},
	}
}

// on добавляет ответ на команду; повторные вызовы образуют очередь.
func (f *fakeConn) on(cmd string, responses ...string) {
	f.script[cmd] = append(f.script[cmd], responses...)
}

// statusSequence задаёт последовательность статусных строк.
func (f *fakeConn) statusSequence(lines ...string) {
	f.status = lines
}

func (f *fakeConn) nextStatus() string {
	if len(f.status) == 0 {
		return "<Idle|WPos:0.000,0.000,0.000|FS:0,0>"
	}
	line := f.status[0]
	if len(f.status) > 1 {
		f.status = f.status[1:]
	}
	return line
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, string(p))

	if len(p) == 1 {
		if p[0] == byteStatusQuery {
			f.out.WriteString(f.nextStatus() + "\r\n")
		}
		return len(p), nil
	}

	line := strings.TrimSuffix(string(p), "\n")
	f.lines = append(f.lines, line)
	if queue := f.script[line]; len(queue) > 0 {
		f.script[line] = queue[1:]
		f.out.WriteString(queue[0] + "\n")
	} else {
		f.out.WriteString("ok\n")
	}
	return len(p), nil
}

func (f *fakeConn) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out.Len() == 0 {
		// Тайм-аут порта: go.bug.st/serial возвращает (0, nil).
		return 0, nil
	}
	return f.out.Read(p)
}

func (f *fakeConn) SetReadTimeout(time.Duration) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// sentCount считает, сколько раз была отправлена строка cmd.
func (f *fakeConn) sentCount(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, line := range f.lines {
		if line == cmd {
			n++
		}
	}
	return n
}

// sentLines возвращает копию всех отправленных строк.
func (f *fakeConn) sentLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// newTestAdapter создаёт адаптер поверх заглушки со сжатыми таймингами.
func newTestAdapter(fc *fakeConn) *GrblAdapter {
	a := NewGrblAdapter(fc, "fake", DefaultOptions(), nil)
	a.readTimeout = 50 * time.Millisecond
	a.commandTimeout = 200 * time.Millisecond
	a.homingTimeout = 100 * time.Millisecond
	a.homingPoll = time.Millisecond
	a.idlePoll = time.Millisecond
	a.settleDelay = time.Millisecond
	return a
}
