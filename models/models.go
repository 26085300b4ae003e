package models

import (
	"fmt"
	"math"
	"strings"
)

// coordinatePrecision - число знаков после запятой, до которого округляются
// все координаты при создании, чтобы избежать накопления шума с плавающей точкой.
const coordinatePrecision = 6

// Coordinate представляет точку в миллиметрах. Значение неизменяемо:
// все операции возвращают новую координату, округлённую до фиксированной точности.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NewCoordinate создаёт координату с округлением каждой оси.
func NewCoordinate(x, y, z float64) Coordinate {
	return Coordinate{X: roundAxis(x), Y: roundAxis(y), Z: roundAxis(z)}
}

func roundAxis(v float64) float64 {
	p := math.Pow(10, coordinatePrecision)
	return math.Round(v*p) / p
}

// Add возвращает покомпонентную сумму координат.
func (c Coordinate) Add(o Coordinate) Coordinate {
	return NewCoordinate(c.X+o.X, c.Y+o.Y, c.Z+o.Z)
}

// Sub возвращает покомпонентную разность координат.
func (c Coordinate) Sub(o Coordinate) Coordinate {
	return NewCoordinate(c.X-o.X, c.Y-o.Y, c.Z-o.Z)
}

// Equal сравнивает координаты точно, по округлённому представлению.
func (c Coordinate) Equal(o Coordinate) bool {
	return roundAxis(c.X) == roundAxis(o.X) &&
		roundAxis(c.Y) == roundAxis(o.Y) &&
		roundAxis(c.Z) == roundAxis(o.Z)
}

func (c Coordinate) String() string {
	return fmt.Sprintf("X%.3f Y%.3f Z%.3f", c.X, c.Y, c.Z)
}

// Состояния контроллера из статусной строки.
const (
	StateIdle    = "Idle"
	StateRun     = "Run"
	StateHold    = "Hold"
	StateAlarm   = "Alarm"
	StateDoor    = "Door"
	StateHome    = "Home"
	StateJog     = "Jog"
	StateUnknown = "Unknown"
)

// ParseState нормализует токен состояния из статусной строки.
// GRBL может добавлять суффикс вида "Hold:0" - он отбрасывается.
func ParseState(token string) string {
	if i := strings.IndexByte(token, ':'); i >= 0 {
		token = token[:i]
	}
	switch token {
	case StateIdle, StateRun, StateHold, StateAlarm, StateDoor, StateHome, StateJog:
		return token
	}
	return StateUnknown
}

// MachineSnapshot - разобранная статусная строка контроллера.
// Создаётся заново на каждый запрос статуса и никогда не мутируется.
type MachineSnapshot struct {
	State           string      `json:"state"`
	Position        Coordinate  `json:"position"`
	MachinePosition *Coordinate `json:"machine_position,omitempty"`
	ActivePins      string      `json:"active_pins,omitempty"`
	FeedSpeed       string      `json:"feed_speed,omitempty"`
}

// PinActive сообщает, поднят ли концевик/щуп указанной оси (символ из Pn:).
func (s *MachineSnapshot) PinActive(pin byte) bool {
	return strings.ContainsRune(s.ActivePins, rune(pin))
}

// Healthy возвращает true, если состояние не является аварийным.
func (s *MachineSnapshot) Healthy() bool {
	return s.State != StateAlarm && s.State != StateUnknown
}

// WorkingVolume - рабочий объём станка в рабочих координатах.
// Инвариант min < max по каждой оси проверяется один раз при создании.
type WorkingVolume struct {
	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`
	YMin float64 `json:"y_min"`
	YMax float64 `json:"y_max"`
	ZMin float64 `json:"z_min"`
	ZMax float64 `json:"z_max"`
}

// Validate проверяет инвариант min < max по каждой оси.
func (v WorkingVolume) Validate() error {
	if v.XMin >= v.XMax || v.YMin >= v.YMax || v.ZMin >= v.ZMax {
		return fmt.Errorf("invalid working volume: min must be below max on every axis, got %+v", v)
	}
	return nil
}

// Contains сообщает, лежит ли точка внутри рабочего объёма.
// Используется верхним уровнем для предварительной проверки целей.
func (v WorkingVolume) Contains(c Coordinate) bool {
	return c.X >= v.XMin && c.X <= v.XMax &&
		c.Y >= v.YMin && c.Y <= v.YMax &&
		c.Z >= v.ZMin && c.Z <= v.ZMax
}

func (v WorkingVolume) String() string {
	return fmt.Sprintf("X[%.1f..%.1f] Y[%.1f..%.1f] Z[%.1f..%.1f]",
		v.XMin, v.XMax, v.YMin, v.YMax, v.ZMin, v.ZMax)
}

// InstrumentOffset - персистентная запись смещения инструмента
// относительно центра портала.
type InstrumentOffset struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// Coordinate возвращает смещение как координату.
func (o InstrumentOffset) Coordinate() Coordinate {
	return NewCoordinate(o.X, o.Y, o.Z)
}

// MoveOutcome - явный результат планировщика перемещений.
type MoveOutcome string

const (
	// MoveSkipped - цель совпала с текущей позицией, команды не отправлялись.
	MoveSkipped MoveOutcome = "skipped"
	// MoveExecuted - контроллеру была отправлена хотя бы одна команда движения.
	MoveExecuted MoveOutcome = "executed"
)
