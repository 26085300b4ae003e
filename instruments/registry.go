// Package instruments хранит персистентные смещения инструментов портала:
// позиция в отчёте станка описывает центр каретки, а наконечник каждого
// инструмента отстоит от него на зарегистрированное смещение.
package instruments

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/iwtcode/grblAdapter/models"
)

// Registry - реестр смещений инструментов. Единственный владелец данных:
// наружу смещения отдаются по значению, изменения немедленно
// персистируются через запись во временный файл и переименование, так что
// читатель файла никогда не увидит обрывок.
type Registry struct {
	path    string
	offsets map[string]models.Coordinate
	logger  *logrus.Logger
}

// defaultOffsets - стартовый набор из четырёх инструментов, создаваемый
// при отсутствии файла реестра. Центр портала - нулевое смещение.
func defaultOffsets() map[string]models.Coordinate {
	return map[string]models.Coordinate{
		"center":  models.NewCoordinate(0, 0, 0),
		"pipette": models.NewCoordinate(-28.5, 4.0, -18.0),
		"sensor":  models.NewCoordinate(31.0, 2.5, -10.5),
		"probe":   models.NewCoordinate(0, -42.0, -25.0),
	}
}

// LoadRegistry читает реестр из файла; при отсутствии файла создаёт и
// сразу сохраняет набор по умолчанию.
func LoadRegistry(path string, logger *logrus.Logger) (*Registry, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	r := &Registry{path: path, logger: logger}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Infof("Файл смещений %s отсутствует, создаю набор по умолчанию", path)
		r.offsets = defaultOffsets()
		if err := r.save(); err != nil {
			return nil, err
		}
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read offsets file: %w", err)
	}

	var records []models.InstrumentOffset
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("corrupt offsets file %s: %w", path, err)
	}
	r.offsets = make(map[string]models.Coordinate, len(records))
	for _, rec := range records {
		r.offsets[rec.Name] = rec.Coordinate()
	}
	return r, nil
}

// Offset возвращает смещение инструмента по имени. Имена образуют
// закрытый набор: незарегистрированный инструмент - ошибка вызывающего.
func (r *Registry) Offset(name string) (models.Coordinate, error) {
	off, ok := r.offsets[name]
	if !ok {
		return models.Coordinate{}, fmt.Errorf("unknown instrument %q", name)
	}
	return off, nil
}

// Names возвращает отсортированный список зарегистрированных инструментов.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.offsets))
	for name := range r.offsets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register добавляет или заменяет инструмент и сразу персистирует реестр.
func (r *Registry) Register(name string, offset models.Coordinate) error {
	if name == "" {
		return fmt.Errorf("instrument name must not be empty")
	}
	r.offsets[name] = offset
	return r.save()
}

// UpdateOffset прибавляет дельту к хранимому смещению и сразу сохраняет
// реестр на диск.
func (r *Registry) UpdateOffset(name string, dx, dy, dz float64) error {
	off, ok := r.offsets[name]
	if !ok {
		return fmt.Errorf("unknown instrument %q", name)
	}
	r.offsets[name] = off.Add(models.NewCoordinate(dx, dy, dz))
	return r.save()
}

func (r *Registry) save() error {
	records := make([]models.InstrumentOffset, 0, len(r.offsets))
	for _, name := range r.Names() {
		off := r.offsets[name]
		records = append(records, models.InstrumentOffset{Name: name, X: off.X, Y: off.Y, Z: off.Z})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal offsets: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write offsets file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace offsets file: %w", err)
	}
	return nil
}
