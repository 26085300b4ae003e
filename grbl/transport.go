package grbl

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/iwtcode/grblAdapter/models"
)

// Скорости, на которых встречаются контроллеры GRBL.
var supportedBauds = []int{115200, 9600}

// verifyWindow - предел одной попытки открыть и опознать порт. Сам цикл
// обнаружения общего тайм-аута не имеет: он рассчитан на автозапуск
// лаборатории без оператора, а ограничение на попытку не даёт одному
// мёртвому порту повесить весь перебор.
const verifyWindow = 2 * time.Second

type portOpener func(name string, baud int) (Conn, error)
type portLister func() ([]string, error)

func openSerialPort(name string, baud int) (Conn, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Locate находит и опознаёт порт контроллера. Предпочтительный порт
// пробуется первым, затем порт из кэша прошлого запуска, затем все
// кандидаты, которые видит система. Опознанный порт кэшируется на диск
// для быстрого переподключения.
func Locate(preferred, cachePath string, logger *logrus.Logger) (Conn, string, error) {
	return locateWith(openSerialPort, serial.GetPortsList, preferred, cachePath, logger)
}

func locateWith(open portOpener, list portLister, preferred, cachePath string, logger *logrus.Logger) (Conn, string, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	var candidates []string
	seen := map[string]bool{}
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		candidates = append(candidates, name)
	}
	add(preferred)
	add(readCachedPort(cachePath))
	if names, err := list(); err == nil {
		for _, name := range names {
			add(name)
		}
	} else {
		logger.Warnf("Перечисление портов не удалось: %v", err)
	}

	for _, name := range candidates {
		for _, baud := range supportedBauds {
			conn, err := open(name, baud)
			if err != nil {
				logger.Debugf("Порт %s (%d бод) не открылся: %v", name, baud, err)
				continue
			}
			if verifyPort(conn, logger) {
				logger.Infof("Контроллер найден на %s (%d бод)", name, baud)
				cachePortName(cachePath, name, logger)
				return conn, name, nil
			}
			logger.Debugf("Порт %s (%d бод) не ответил узнаваемым токеном", name, baud)
			conn.Close()
		}
	}

	return nil, "", ErrNoPortFound
}

// verifyPort будит контроллер (CR/LF, мягкий сброс, запрос статуса и
// настроек) и ждёт в ответе узнаваемый токен прошивки.
func verifyPort(conn Conn, logger *logrus.Logger) bool {
	wake := [][]byte{
		[]byte("\r\n"),
		{byteSoftReset},
		{byteStatusQuery},
		[]byte(cmdSettingsDump + "\n"),
	}
	for _, chunk := range wake {
		if _, err := conn.Write(chunk); err != nil {
			logger.Debugf("Запись пробуждения не удалась: %v", err)
			return false
		}
	}
	return isControllerReply(readFor(conn, verifyWindow))
}

// readFor собирает вывод порта в течение окна, останавливаясь раньше,
// если токен уже получен.
func readFor(conn Conn, window time.Duration) string {
	deadline := time.Now().Add(window)
	var buf bytes.Buffer
	for time.Now().Before(deadline) {
		if err := conn.SetReadTimeout(time.Until(deadline)); err != nil {
			break
		}
		chunk := make([]byte, 256)
		n, err := conn.Read(chunk)
		if err != nil || n == 0 {
			break
		}
		buf.Write(chunk[:n])
		if isControllerReply(buf.String()) {
			break
		}
	}
	return buf.String()
}

// Токены, по которым опознаётся контроллер: баннер прошивки, ответы
// протокола и имена состояний.
var controllerTokens = []string{
	"grbl", "ok", "error",
	"idle", "run", "hold", "alarm", "door", "home", "jog",
}

func isControllerReply(reply string) bool {
	reply = strings.ToLower(reply)
	for _, token := range controllerTokens {
		if strings.Contains(reply, token) {
			return true
		}
	}
	return false
}

type portCache struct {
	Port string `json:"port"`
}

func readCachedPort(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var cache portCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return ""
	}
	return cache.Port
}

func cachePortName(path, name string, logger *logrus.Logger) {
	if path == "" {
		return
	}
	data, err := json.Marshal(portCache{Port: name})
	if err != nil {
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logger.Warnf("Кэш порта не записан: %v", err)
	}
}

// Flush сбрасывает накопившийся вывод контроллера: баннер после сброса и
// хвост дампа настроек, оставшийся от обнаружения порта.
func (a *GrblAdapter) Flush(window time.Duration) {
	if a.conn == nil {
		return
	}
	a.pending = nil
	readFor(a.conn, window)
}

// Setup приводит свежеоткрытое соединение к рабочему виду: сбрасывает
// хвосты обнаружения, принудительно включает отчёт в рабочих координатах
// ($10=0) и снимает аварию, если станок загрузился заблокированным.
func (a *GrblAdapter) Setup() error {
	if a.conn == nil {
		return ErrNotConnected
	}
	a.Flush(300 * time.Millisecond)

	if _, err := a.Execute("$10=0", false); err != nil {
		return err
	}

	snap, err := a.QueryStatus()
	if err != nil {
		return err
	}
	if snap.State == models.StateAlarm {
		if rerr := a.recoverFromAlarm("connect"); rerr != nil {
			return rerr
		}
	}
	return nil
}
