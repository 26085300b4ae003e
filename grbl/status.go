package grbl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iwtcode/grblAdapter/models"
)

// ParseStatus - чистая функция разбора статусного отчёта вида
// "<Idle|WPos:1.000,2.000,3.000|FS:0,0|Pn:XY>".
//
// Позиция берётся из WPos; если контроллер прислал только MPos вместе с
// WCO, рабочая позиция вычисляется как WPos = MPos - WCO. MPos никогда не
// выдаётся вызывающему как рабочая позиция: при подключении принудительно
// включается отчёт в рабочих координатах ($10=0), а вычисление через WCO
// остаётся защитным путём. Если позицию получить нельзя, разбор
// завершается ErrLocationNotFound.
func ParseStatus(raw string) (*models.MachineSnapshot, error) {
	start := strings.IndexByte(raw, '<')
	end := strings.IndexByte(raw, '>')
	if start < 0 || end < 0 || end <= start {
		return nil, fmt.Errorf("malformed status report %q", raw)
	}

	parts := strings.Split(raw[start+1:end], "|")
	snap := &models.MachineSnapshot{State: models.ParseState(parts[0])}

	var wpos, mpos, wco *models.Coordinate
	for _, part := range parts[1:] {
		keyval := strings.SplitN(part, ":", 2)
		if len(keyval) != 2 {
			continue
		}
		key, val := keyval[0], keyval[1]
		switch strings.ToLower(key) {
		case "wpos":
			if c, err := parseTriple(val); err == nil {
				wpos = &c
			}
		case "mpos":
			if c, err := parseTriple(val); err == nil {
				mpos = &c
			}
		case "wco":
			if c, err := parseTriple(val); err == nil {
				wco = &c
			}
		case "pn":
			snap.ActivePins = val
		case "fs", "f":
			snap.FeedSpeed = val
		}
	}

	switch {
	case wpos != nil:
		snap.Position = *wpos
	case mpos != nil && wco != nil:
		snap.Position = mpos.Sub(*wco)
	default:
		return nil, fmt.Errorf("%w: %q", ErrLocationNotFound, raw)
	}
	if mpos != nil {
		snap.MachinePosition = mpos
	}

	return snap, nil
}

// parseTriple разбирает "x,y,z" в координату.
func parseTriple(val string) (models.Coordinate, error) {
	fields := strings.Split(val, ",")
	if len(fields) < 3 {
		return models.Coordinate{}, fmt.Errorf("expected three axes, got %q", val)
	}
	axes := make([]float64, 3)
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return models.Coordinate{}, fmt.Errorf("axis %d of %q: %w", i, val, err)
		}
		axes[i] = v
	}
	return models.NewCoordinate(axes[0], axes[1], axes[2]), nil
}
