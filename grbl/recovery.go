package grbl

import (
	"fmt"
	"time"

	"github.com/iwtcode/grblAdapter/models"
)

// recoveryBackoffMM - величина относительного отхода от сработавшей границы.
const recoveryBackoffMM = 2.0

// withRetry выполняет f не более attempts раз с паузой delay между попытками.
// f возвращает (retry, err): err == nil завершает успех, retry == false
// делает ошибку окончательной. Единственное место, где живут все
// ограниченные повторы драйвера: error:22, восстановление после аварии,
// повтор $H при хоминге.
func withRetry(attempts int, delay time.Duration, f func() (bool, error)) error {
	var err error
	for i := 0; i < attempts; i++ {
		var retry bool
		retry, err = f()
		if err == nil || !retry {
			return err
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return err
}

// recoverFromAlarm - единая точка восстановления после аварии, куда
// сходятся все три пути её обнаружения: подключение, ожидание завершения
// команды и ответ на Execute.
//
// Последовательность: разблокировка $X (заблокированный контроллер не
// примет движение), небольшой относительный отход от границы, к которой
// ближе всего текущая позиция, и проверка, что станок вышел из Alarm.
// Попытка ровно одна; не снятая авария поднимается как *StatusError.
func (a *GrblAdapter) recoverFromAlarm(trigger string) error {
	a.logger.Warnf("Обнаружена авария (%q), пробую автоматическое восстановление", trigger)

	center, _, posErr := a.CurrentCoordinates(nil)

	a.unlock()
	time.Sleep(a.settleDelay)

	if posErr == nil {
		axis, dir := a.backoffDirection(center)
		a.logger.Infof("Отхожу от границы: ось %s, направление %+d, %.1f мм", axis, dir, recoveryBackoffMM)
		if _, err := a.exchange("G91"); err == nil {
			if _, err := a.exchange(fmt.Sprintf("G1 %s%.3f F%.1f", axis, float64(dir)*recoveryBackoffMM, a.feedRate)); err != nil {
				a.logger.Warnf("Отход от границы не выполнен: %v", err)
			}
			if _, err := a.exchange("G90"); err != nil {
				a.logger.Warnf("Возврат в абсолютный режим не подтверждён: %v", err)
			}
		}
	} else {
		a.logger.Warnf("Позиция недоступна (%v), отход пропущен", posErr)
	}

	err := withRetry(3, a.settleDelay, func() (bool, error) {
		snap, serr := a.QueryStatus()
		if serr != nil {
			return true, serr
		}
		if snap.State == models.StateAlarm {
			return true, fmt.Errorf("machine still in alarm state")
		}
		return false, nil
	})
	if err != nil {
		a.logger.Errorf("Авария не снята после восстановления: %v", err)
		return &StatusError{Response: trigger}
	}

	a.logger.Info("Авария снята, станок в рабочем состоянии")
	return nil
}

// backoffDirection выбирает ось и направление отхода: берётся граница
// рабочего объёма, к которой текущая позиция ближе всего, и движение
// направляется от неё.
func (a *GrblAdapter) backoffDirection(c models.Coordinate) (string, int) {
	type bound struct {
		axis string
		dist float64
		dir  int
	}
	bounds := []bound{
		{"X", c.X - a.volume.XMin, +1},
		{"X", a.volume.XMax - c.X, -1},
		{"Y", c.Y - a.volume.YMin, +1},
		{"Y", a.volume.YMax - c.Y, -1},
		{"Z", c.Z - a.volume.ZMin, +1},
		{"Z", a.volume.ZMax - c.Z, -1},
	}
	best := bounds[0]
	for _, b := range bounds[1:] {
		if b.dist < best.dist {
			best = b
		}
	}
	return best.axis, best.dir
}
