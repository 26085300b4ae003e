package grbl

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iwtcode/grblAdapter/models"
)

// Conn - минимальный контракт последовательного порта, который нужен драйверу.
// go.bug.st/serial.Port удовлетворяет ему напрямую; в тестах его подменяет
// скриптованная заглушка станка.
type Conn interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Options задаёт параметры драйвера, не зависящие от конкретного порта.
type Options struct {
	// SafeZHeight - высота Z, начиная с которой горизонтальное перемещение безопасно.
	SafeZHeight float64
	// FeedRate - подача по умолчанию для линейных перемещений, мм/мин.
	FeedRate float64
	// DefaultVolume - рабочий объём на случай, когда настройки контроллера недоступны.
	DefaultVolume models.WorkingVolume
	// HomingDirections - направление поиска концевика по каждой оси (+1/-1)
	// для станков без датчиков дома.
	HomingDirections map[string]int
}

// DefaultOptions возвращает параметры, подходящие для типового портала лаборатории.
func DefaultOptions() Options {
	return Options{
		SafeZHeight: -5.0,
		FeedRate:    800.0,
		DefaultVolume: models.WorkingVolume{
			XMin: 0, XMax: 300,
			YMin: 0, YMax: 200,
			ZMin: -80, ZMax: 0,
		},
		HomingDirections: map[string]int{"X": -1, "Y": -1, "Z": 1},
	}
}

// GrblAdapter инкапсулирует строчный протокол GRBL поверх последовательного
// порта: выполнение команд, разбор статуса, хоминг и восстановление после аварий.
//
// Протокол строго синхронный: одна команда за раз, следующая отправляется
// только после ответа на предыдущую. Адаптер рассчитан на единственного
// вызывающего и не содержит внутренней блокировки.
type GrblAdapter struct {
	conn     Conn
	portName string
	logger   *logrus.Logger

	// Остаток байт, прочитанных сверх последней строки. Статусные строки
	// могут приходить разрезанными, поэтому хвост сохраняется между чтениями.
	pending []byte

	settings map[string]string
	volume   models.WorkingVolume

	homed      bool
	maxZHeight float64
	safeZ      float64
	feedRate   float64
	homingDirs map[string]int

	// Тайминги вынесены в поля, чтобы тесты могли их сжать.
	readTimeout    time.Duration // одна попытка чтения строки
	commandTimeout time.Duration // ожидание Idle после обычной команды
	homingTimeout  time.Duration // стандартный цикл $H
	homingPoll     time.Duration // период опроса статуса при хоминге
	idlePoll       time.Duration // период опроса статуса при ожидании Idle
	settleDelay    time.Duration // пауза после разблокировки
}

// NewGrblAdapter создаёт адаптер поверх уже открытого и проверенного порта.
func NewGrblAdapter(conn Conn, portName string, opts Options, logger *logrus.Logger) *GrblAdapter {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	dirs := opts.HomingDirections
	if dirs == nil {
		dirs = DefaultOptions().HomingDirections
	}
	return &GrblAdapter{
		conn:     conn,
		portName: portName,
		logger:   logger,

		settings: map[string]string{},
		volume:   opts.DefaultVolume,

		maxZHeight: opts.DefaultVolume.ZMax,
		safeZ:      opts.SafeZHeight,
		feedRate:   opts.FeedRate,
		homingDirs: dirs,

		readTimeout:    2 * time.Second,
		commandTimeout: 30 * time.Second,
		homingTimeout:  90 * time.Second,
		homingPoll:     500 * time.Millisecond,
		idlePoll:       100 * time.Millisecond,
		settleDelay:    250 * time.Millisecond,
	}
}

// PortName возвращает имя порта, на котором открыт адаптер.
func (a *GrblAdapter) PortName() string { return a.portName }

// Homed сообщает, был ли успешно завершён хоминг на текущем соединении.
func (a *GrblAdapter) Homed() bool { return a.homed }

// Connected сообщает, открыт ли порт.
func (a *GrblAdapter) Connected() bool { return a.conn != nil }

// WorkingVolume возвращает действующий рабочий объём.
func (a *GrblAdapter) WorkingVolume() models.WorkingVolume { return a.volume }

// MaxZHeight возвращает высоту подъёма, определённую после хоминга.
func (a *GrblAdapter) MaxZHeight() float64 { return a.maxZHeight }

// Close закрывает порт. Флаг homed сбрасывается: после обрыва соединения
// положение осей считается неизвестным.
func (a *GrblAdapter) Close() error {
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	a.homed = false
	a.pending = nil
	return err
}
