package grbl

import (
	"fmt"
	"strings"
	"time"

	"github.com/iwtcode/grblAdapter/models"
)

// Параметры покоординатного поиска концевиков.
const (
	homingStepMM      = 10.0
	homingMaxTravelMM = 320.0
	homingBackoffMM   = 2.0
)

// HomeStandard выполняет штатный цикл хоминга $H и опрашивает статус до
// состояния Idle. Авария посреди цикла допускает один повтор $H; вторая
// авария фатальна.
//
// Тайм-аут без достижения Idle не считается ошибкой вызова, но станок
// остаётся не отхомленным: положение после неполного цикла неизвестно,
// и Homed() честно возвращает false.
func (a *GrblAdapter) HomeStandard() error {
	if a.conn == nil {
		return ErrNotConnected
	}
	a.homed = false

	a.logger.Info("Запускаю стандартный цикл хоминга $H")
	if err := a.writeLine(cmdHoming); err != nil {
		return &CommandError{Command: cmdHoming, Err: err}
	}

	deadline := time.Now().Add(a.homingTimeout)
	reissued := false
	for time.Now().Before(deadline) {
		time.Sleep(a.homingPoll)

		snap, err := a.QueryStatus()
		if err != nil {
			// Строка могла прийти рваной, следующий опрос даст свежую.
			continue
		}
		switch snap.State {
		case models.StateAlarm:
			if reissued {
				a.logger.Error("Повторная авария во время хоминга")
				return &StatusError{Response: models.StateAlarm}
			}
			reissued = true
			a.logger.Warn("Авария во время хоминга, разблокирую и повторяю $H")
			a.unlock()
			time.Sleep(a.settleDelay)
			if err := a.writeLine(cmdHoming); err != nil {
				return &CommandError{Command: cmdHoming, Err: err}
			}
		case models.StateIdle:
			a.homed = true
			a.discoverMaxZ()
			a.logger.Infof("Хоминг завершён, высота подъёма %.3f", a.maxZHeight)
			return nil
		}
	}

	a.logger.Warnf("Хоминг не достиг Idle за %s; станок считается не отхомленным", a.homingTimeout)
	return nil
}

// HomeByLimitSwitches - хоминг для станков без датчиков дома, только с
// аварийными концевиками: каждая ось независимо подводится к концевику
// фиксированными шагами, после срабатывания отводится и обнуляется.
func (a *GrblAdapter) HomeByLimitSwitches() error {
	if a.conn == nil {
		return ErrNotConnected
	}
	a.homed = false

	for _, axis := range []string{"X", "Y", "Z"} {
		if err := a.homeAxisByLimit(axis); err != nil {
			return err
		}
	}

	a.homed = true
	a.discoverMaxZ()
	a.logger.Infof("Покоординатный хоминг завершён, высота подъёма %.3f", a.maxZHeight)
	return nil
}

// homeAxisByLimit ищет концевик одной оси: относительный режим, шаги по
// 10 мм в настроенном направлении до предела хода. Срабатывание видно либо
// как error:9/Alarm в ответе, либо как Alarm или флаг Pn нужной оси в
// последующем статусе. После срабатывания: $X, пауза, отход на 2 мм в
// обратную сторону, обнуление рабочей координаты оси (G10 L20 P1) и
// возврат в абсолютный режим.
func (a *GrblAdapter) homeAxisByLimit(axis string) error {
	dir := a.homingDirs[axis]
	if dir == 0 {
		dir = -1
	}
	a.logger.Infof("Ищу концевик оси %s шагами %.0f мм (направление %+d)", axis, homingStepMM, dir)

	if _, err := a.Execute("G91", false); err != nil {
		return err
	}

	travelled := 0.0
	hit := false
	for travelled < homingMaxTravelMM {
		step := fmt.Sprintf("G1 %s%.1f F%.1f", axis, float64(dir)*homingStepMM, a.feedRate)
		resp, err := a.Execute(step, true)
		if err != nil {
			a.Execute("G90", true)
			return err
		}
		travelled += homingStepMM

		if strings.Contains(resp, "error:9") || containsAlarm(resp) {
			hit = true
		} else if snap, serr := a.QueryStatus(); serr == nil {
			if snap.State == models.StateAlarm || snap.PinActive(axis[0]) {
				hit = true
			}
		}
		if hit {
			break
		}
	}

	if !hit {
		a.Execute("G90", true)
		return &HomingError{Axis: axis, Travelled: travelled}
	}

	a.logger.Infof("Концевик оси %s сработал на %.0f мм, отвожу и обнуляю", axis, travelled)
	a.unlock()
	time.Sleep(a.settleDelay)

	if _, err := a.Execute(fmt.Sprintf("G1 %s%.1f F%.1f", axis, float64(-dir)*homingBackoffMM, a.feedRate), true); err != nil {
		return err
	}
	if _, err := a.Execute(fmt.Sprintf("G10 L20 P1 %s0", axis), false); err != nil {
		return err
	}
	if _, err := a.Execute("G90", false); err != nil {
		return err
	}
	return nil
}

// discoverMaxZ фиксирует рабочую высоту Z сразу после хоминга: станок
// стоит в верхней точке, и эта высота дальше служит планировщику
// безопасной высотой подъёма.
func (a *GrblAdapter) discoverMaxZ() {
	center, _, err := a.CurrentCoordinates(nil)
	if err != nil {
		a.logger.Warnf("Не удалось определить высоту подъёма после хоминга: %v", err)
		return
	}
	a.maxZHeight = center.Z
}
