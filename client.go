// Package gantry предоставляет высокоуровневый клиент портального станка
// на контроллере GRBL: подключение, хоминг, безопасные перемещения
// инструментов и опрос состояния.
package gantry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iwtcode/grblAdapter/grbl"
	"github.com/iwtcode/grblAdapter/instruments"
	"github.com/iwtcode/grblAdapter/models"
)

// centerInstrument - имя псевдоинструмента с нулевым смещением: перемещение
// "центра" портала совпадает с позицией в отчёте станка.
const centerInstrument = "center"

// Client - фасад драйвера: связывает адаптер протокола GRBL и реестр
// смещений инструментов. Рассчитан на единственного оркестрирующего
// вызывающего; параллельные команды одному станку не имеют смысла.
type Client struct {
	config   *Config
	logger   *logrus.Logger
	registry *instruments.Registry
	adapter  *grbl.GrblAdapter
}

// New создаёт клиента: настраивает логгер по конфигурации и загружает
// реестр смещений. Порт на этом этапе не открывается - см. Connect.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = Load()
	}

	logger := logrus.New()

	if cfg.LogLevel == "off" || cfg.LogLevel == "none" {
		logger.SetOutput(io.Discard)
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
		logger.SetOutput(os.Stdout)
	}

	// Настраиваем форматтер с понятным форматом времени
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		ForceColors:     true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	registry, err := instruments.LoadRegistry(cfg.OffsetsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load instrument registry: %w", err)
	}

	return &Client{
		config:   cfg,
		logger:   logger,
		registry: registry,
	}, nil
}

// GetLogger возвращает логгер клиента.
func (c *Client) GetLogger() *logrus.Logger {
	return c.logger
}

// Connect находит контроллер, открывает порт и приводит соединение к
// рабочему виду. Настройки контроллера считываются и сохраняются в
// локальный файл; если живой дамп не удался, берётся прошлая локальная
// копия, а при её отсутствии - объём по умолчанию.
//
// Повторный вызов при открытом соединении - no-op.
func (c *Client) Connect() error {
	if c.adapter != nil && c.adapter.Connected() {
		return nil
	}

	conn, portName, err := grbl.Locate(c.config.Port, c.config.PortCacheFile, c.logger)
	if err != nil {
		return fmt.Errorf("failed to locate controller: %w", err)
	}

	adapter := grbl.NewGrblAdapter(conn, portName, grbl.Options{
		SafeZHeight:   c.config.SafeZHeight,
		FeedRate:      c.config.FeedRate,
		DefaultVolume: c.config.Volume,
	}, c.logger)

	if err := adapter.Setup(); err != nil {
		adapter.Close()
		return fmt.Errorf("failed to initialize controller: %w", err)
	}

	if _, err := adapter.RefreshSettings(); err != nil {
		c.logger.Warnf("Дамп настроек не удался: %v", err)
		if cached, ferr := grbl.LoadSettingsFile(c.config.SettingsFile); ferr == nil {
			c.logger.Info("Использую локальную копию настроек")
			adapter.ApplySettings(cached)
		} else {
			c.logger.Warnf("Локальная копия настроек недоступна, остаётся объём по умолчанию: %v", ferr)
		}
	} else if err := grbl.SaveSettingsFile(c.config.SettingsFile, adapter.Settings()); err != nil {
		c.logger.Warnf("Настройки не сохранены локально: %v", err)
	}

	c.adapter = adapter
	c.logger.Infof("Подключение к контроллеру на %s установлено", portName)
	return nil
}

// Disconnect закрывает соединение с контроллером. Ошибка закрытия
// логируется, но не мешает считать клиента отключённым.
func (c *Client) Disconnect() {
	if c.adapter == nil {
		return
	}
	if err := c.adapter.Close(); err != nil {
		c.logger.Warnf("Ошибка при закрытии порта: %v", err)
	}
	c.adapter = nil
	c.logger.Info("Соединение с контроллером закрыто")
}

// IsHealthy сообщает, открыт ли порт и отвечает ли станок статусом без
// аварии и без ошибки.
func (c *Client) IsHealthy() bool {
	if c.adapter == nil || !c.adapter.Connected() {
		return false
	}
	snap, err := c.adapter.QueryStatus()
	if err != nil {
		return false
	}
	return snap.Healthy()
}

// Homed сообщает, был ли станок успешно отхомлен на текущем соединении.
func (c *Client) Homed() bool {
	return c.adapter != nil && c.adapter.Homed()
}

// Home выполняет хоминг по стратегии из конфигурации: штатный цикл $H
// либо покоординатный поиск аварийных концевиков для станков без
// датчиков дома.
func (c *Client) Home() error {
	if err := c.requireConnection(); err != nil {
		return err
	}
	switch c.config.HomingStrategy {
	case HomingLimitSwitch:
		return c.adapter.HomeByLimitSwitches()
	default:
		return c.adapter.HomeStandard()
	}
}

// MoveTo безопасно перемещает центр портала в точку рабочих координат.
func (c *Client) MoveTo(x, y, z float64) (models.MoveOutcome, error) {
	return c.MoveInstrumentTo(centerInstrument, x, y, z)
}

// MoveInstrumentTo безопасно подводит наконечник инструмента в точку
// рабочих координат: цель пересчитывается в координаты центра портала по
// зарегистрированному смещению.
func (c *Client) MoveInstrumentTo(instrument string, x, y, z float64) (models.MoveOutcome, error) {
	return c.move(instrument, x, y, z, nil, 0)
}

// MoveInstrumentWithDescent подводит инструмент в точку и затем выполняет
// финальный спуск до finalZ на подаче descentFeed (мм/мин; неположительная
// подача заменяется подачей по умолчанию). Используется для захода
// пипетки в лунку на сниженной скорости.
func (c *Client) MoveInstrumentWithDescent(instrument string, x, y, z, finalZ, descentFeed float64) (models.MoveOutcome, error) {
	return c.move(instrument, x, y, z, &finalZ, descentFeed)
}

func (c *Client) move(instrument string, x, y, z float64, secondZ *float64, secondFeed float64) (models.MoveOutcome, error) {
	if err := c.requireConnection(); err != nil {
		return models.MoveSkipped, err
	}
	offset, err := c.registry.Offset(instrument)
	if err != nil {
		return models.MoveSkipped, err
	}

	target := models.NewCoordinate(x, y, z)
	volume := c.adapter.WorkingVolume()
	if !volume.Contains(target) {
		return models.MoveSkipped, fmt.Errorf("target %s is outside working volume %s", target, volume)
	}
	if secondZ != nil {
		final := models.NewCoordinate(x, y, *secondZ)
		if !volume.Contains(final) {
			return models.MoveSkipped, fmt.Errorf("descent target %s is outside working volume %s", final, volume)
		}
	}

	outcome, _, err := c.adapter.SafeMove(grbl.MoveRequest{
		Target:      target,
		Offset:      offset,
		SecondZ:     secondZ,
		SecondZFeed: secondFeed,
	})
	if err != nil {
		return outcome, fmt.Errorf("failed to move %s to %s: %w", instrument, target, err)
	}
	c.logger.Infof("Инструмент %s: перемещение к %s - %s", instrument, target, outcome)
	return outcome, nil
}

// GetCoordinates возвращает текущую позицию центра портала в рабочих
// координатах.
func (c *Client) GetCoordinates() (models.Coordinate, error) {
	if err := c.requireConnection(); err != nil {
		return models.Coordinate{}, err
	}
	center, _, err := c.adapter.CurrentCoordinates(nil)
	return center, err
}

// InstrumentCoordinates возвращает позицию наконечника инструмента и
// позицию центра портала.
func (c *Client) InstrumentCoordinates(instrument string) (tip, center models.Coordinate, err error) {
	if err := c.requireConnection(); err != nil {
		return models.Coordinate{}, models.Coordinate{}, err
	}
	offset, err := c.registry.Offset(instrument)
	if err != nil {
		return models.Coordinate{}, models.Coordinate{}, err
	}
	center, tip, err = c.adapter.CurrentCoordinates(&offset)
	return tip, center, err
}

// GetStatus возвращает разобранный статусный отчёт станка.
func (c *Client) GetStatus() (*models.MachineSnapshot, error) {
	if err := c.requireConnection(); err != nil {
		return nil, err
	}
	return c.adapter.QueryStatus()
}

// Stop немедленно приостанавливает подачу (байт "!"). Ошибка записи
// логируется: при аварийной остановке вызывающему важнее попытка, чем
// отчёт о ней.
func (c *Client) Stop() {
	if c.adapter == nil {
		return
	}
	if err := c.adapter.FeedHold(); err != nil {
		c.logger.Errorf("Пауза подачи не отправлена: %v", err)
		return
	}
	c.logger.Warn("Подача приостановлена")
}

// Resume снимает паузу подачи и продолжает прерванное движение.
func (c *Client) Resume() error {
	if err := c.requireConnection(); err != nil {
		return err
	}
	return c.adapter.CycleStart()
}

// SoftReset выполняет мягкий сброс контроллера. После сброса требуется
// повторный хоминг.
func (c *Client) SoftReset() error {
	if err := c.requireConnection(); err != nil {
		return err
	}
	return c.adapter.SoftReset()
}

// Jog выполняет относительный сдвиг по одной оси через $J=: такое
// движение контроллер может мгновенно отменить и оно не меняет модальное
// состояние G-кода.
func (c *Client) Jog(axis string, distance float64) error {
	if err := c.requireConnection(); err != nil {
		return err
	}
	axis = strings.ToUpper(strings.TrimSpace(axis))
	if axis != "X" && axis != "Y" && axis != "Z" {
		return fmt.Errorf("unknown jog axis %q", axis)
	}
	cmd := fmt.Sprintf("$J=G21G91%s%.3fF%.1f", axis, distance, c.config.FeedRate)
	_, err := c.adapter.Execute(cmd, false)
	return err
}

// ExecuteRaw отправляет произвольную строку протокола и возвращает сырой
// ответ контроллера. Ошибки и аварии в ответе не подавляются.
func (c *Client) ExecuteRaw(command string) (string, error) {
	if err := c.requireConnection(); err != nil {
		return "", err
	}
	return c.adapter.Execute(command, false)
}

// Settings возвращает настройки контроллера: с живого соединения - свежий
// дамп, иначе локальную копию с диска.
func (c *Client) Settings() (map[string]string, error) {
	if c.adapter != nil && c.adapter.Connected() {
		settings, err := c.adapter.RefreshSettings()
		if err != nil {
			return nil, err
		}
		if serr := grbl.SaveSettingsFile(c.config.SettingsFile, settings); serr != nil {
			c.logger.Warnf("Настройки не сохранены локально: %v", serr)
		}
		return settings, nil
	}
	return grbl.LoadSettingsFile(c.config.SettingsFile)
}

// Instruments возвращает отсортированный список зарегистрированных
// инструментов.
func (c *Client) Instruments() []string {
	return c.registry.Names()
}

// UpdateOffset прибавляет калибровочную дельту к смещению инструмента и
// сразу персистирует реестр.
func (c *Client) UpdateOffset(instrument string, dx, dy, dz float64) error {
	return c.registry.UpdateOffset(instrument, dx, dy, dz)
}

// WorkingVolume возвращает действующий рабочий объём: с открытого
// соединения - выведенный из настроек контроллера, иначе объём из
// конфигурации.
func (c *Client) WorkingVolume() models.WorkingVolume {
	if c.adapter != nil && c.adapter.Connected() {
		return c.adapter.WorkingVolume()
	}
	return c.config.Volume
}

func (c *Client) requireConnection() error {
	if c.adapter == nil || !c.adapter.Connected() {
		return grbl.ErrNotConnected
	}
	return nil
}

// IsNotConnected сообщает, вызвана ли ошибка отсутствием соединения.
func IsNotConnected(err error) bool {
	return errors.Is(err, grbl.ErrNotConnected)
}
