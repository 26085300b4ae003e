package grbl

import (
	"fmt"

	"github.com/iwtcode/grblAdapter/models"
)

// MoveRequest описывает одно безопасное перемещение.
type MoveRequest struct {
	// Target - логическая цель в рабочих координатах.
	Target models.Coordinate
	// Offset - смещение инструмента; прибавляется к цели, чтобы получить
	// цель в системе центра портала.
	Offset models.Coordinate
	// SecondZ - необязательный финальный спуск после основного перемещения,
	// например заход в лунку на сниженной скорости.
	SecondZ *float64
	// SecondZFeed - подача финального спуска, мм/мин.
	SecondZFeed float64
}

// SafeMove планирует и выполняет перемещение, не протаскивая опущенный
// инструмент сквозь посуду на деке.
//
// Форма движения:
//   - инструмент на безопасной высоте - диагональное перемещение XY и
//     затем Z;
//   - инструмент опущен и цель XY отличается - сначала подъём на
//     максимальную высоту, потом диагональ и спуск;
//   - изменился только Z либо только одна ось - отдельная линейная
//     команда на каждую изменившуюся ось.
//
// Совпадение цели с текущей позицией по всем трём осям - гарантированный
// пропуск: ни одна команда не отправляется, результат MoveSkipped.
func (a *GrblAdapter) SafeMove(req MoveRequest) (models.MoveOutcome, models.Coordinate, error) {
	if a.conn == nil {
		return models.MoveSkipped, models.Coordinate{}, ErrNotConnected
	}

	center, _, err := a.CurrentCoordinates(nil)
	if err != nil {
		return models.MoveSkipped, models.Coordinate{}, err
	}

	target := req.Target.Add(req.Offset)
	if target.Equal(center) {
		a.logger.Debugf("Цель %s совпадает с текущей позицией, перемещение пропущено", target)
		return models.MoveSkipped, center, nil
	}

	xyChanged := target.X != center.X || target.Y != center.Y
	zChanged := target.Z != center.Z
	zSafe := center.Z >= a.maxZHeight || center.Z >= a.safeZ

	var moves []string
	switch {
	case xyChanged && !zSafe:
		// Инструмент опущен: поднять, пройти диагональ, опуститься.
		moves = append(moves, fmt.Sprintf("G1 Z%.3f F%.1f", a.maxZHeight, a.feedRate))
		moves = append(moves, fmt.Sprintf("G1 X%.3f Y%.3f F%.1f", target.X, target.Y, a.feedRate))
		if target.Z != a.maxZHeight {
			moves = append(moves, fmt.Sprintf("G1 Z%.3f F%.1f", target.Z, a.feedRate))
		}
	case xyChanged:
		moves = append(moves, fmt.Sprintf("G1 X%.3f Y%.3f F%.1f", target.X, target.Y, a.feedRate))
		if zChanged {
			moves = append(moves, fmt.Sprintf("G1 Z%.3f F%.1f", target.Z, a.feedRate))
		}
	default:
		// Меняется только Z.
		moves = append(moves, fmt.Sprintf("G1 Z%.3f F%.1f", target.Z, a.feedRate))
	}

	for _, move := range moves {
		if _, err := a.Execute(move, false); err != nil {
			return models.MoveExecuted, target, err
		}
	}

	final := target
	if req.SecondZ != nil {
		feed := req.SecondZFeed
		if feed <= 0 {
			feed = a.feedRate
		}
		if _, err := a.Execute(fmt.Sprintf("G1 Z%.3f F%.1f", *req.SecondZ, feed), false); err != nil {
			return models.MoveExecuted, final, err
		}
		final = models.NewCoordinate(target.X, target.Y, *req.SecondZ)
	}

	return models.MoveExecuted, final, nil
}
