package grbl

import (
	"github.com/iwtcode/grblAdapter/models"
)

// CurrentCoordinates возвращает позицию центра портала и позицию
// наконечника инструмента, если передано его смещение. Отчёт станка
// описывает центр портала; наконечник - центр минус смещение.
//
// Статус запрашивается до трёх раз: строки могут прийти разрезанными или
// устаревшими, и каждый повторный запрос даёт свежую попытку разбора.
func (a *GrblAdapter) CurrentCoordinates(offset *models.Coordinate) (models.Coordinate, models.Coordinate, error) {
	if a.conn == nil {
		return models.Coordinate{}, models.Coordinate{}, ErrNotConnected
	}

	var center models.Coordinate
	err := withRetry(3, 0, func() (bool, error) {
		snap, serr := a.QueryStatus()
		if serr != nil {
			return true, serr
		}
		center = snap.Position
		return false, nil
	})
	if err != nil {
		return models.Coordinate{}, models.Coordinate{}, err
	}

	tip := center
	if offset != nil {
		tip = center.Sub(*offset)
	}
	return center, tip, nil
}
