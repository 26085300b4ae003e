package grbl

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// refreshSettings запрашивает дамп настроек $$ и разбирает его в плоскую
// карту ключ-значение. Чтение идёт до литеральной строки "ok"; баннеры и
// сообщения пропускаются.
func (a *GrblAdapter) refreshSettings() (map[string]string, error) {
	if err := a.writeLine(cmdSettingsDump); err != nil {
		return nil, err
	}
	settings := map[string]string{}
	deadline := time.Now().Add(a.readTimeout * 4)
	for {
		line, err := a.readLine(time.Until(deadline))
		if err != nil {
			return nil, fmt.Errorf("settings dump interrupted: %w", err)
		}
		if line == "ok" {
			break
		}
		key, value, ok := parseSettingLine(line)
		if !ok {
			continue
		}
		settings[key] = value
	}
	a.settings = settings
	a.applyVolumeFromSettings()
	a.logger.Debugf("Получено %d настроек контроллера", len(settings))
	return a.Settings(), nil
}

// RefreshSettings перечитывает настройки с живого контроллера.
func (a *GrblAdapter) RefreshSettings() (map[string]string, error) {
	if a.conn == nil {
		return nil, ErrNotConnected
	}
	return a.refreshSettings()
}

// Settings возвращает копию кэша настроек.
func (a *GrblAdapter) Settings() map[string]string {
	out := make(map[string]string, len(a.settings))
	for k, v := range a.settings {
		out[k] = v
	}
	return out
}

// ApplySettings подставляет настройки из локального файла, когда живое
// соединение недоступно или дамп не удался.
func (a *GrblAdapter) ApplySettings(settings map[string]string) {
	a.settings = make(map[string]string, len(settings))
	for k, v := range settings {
		a.settings[k] = v
	}
	a.applyVolumeFromSettings()
}

// parseSettingLine разбирает строку вида "$110=800.000 (x max rate)".
// Строки другого вида (баннеры, сообщения) отбрасываются.
func parseSettingLine(line string) (string, string, bool) {
	if !strings.HasPrefix(line, "$") {
		return "", "", false
	}
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return "", "", false
	}
	key := line[:eq]
	value := line[eq+1:]
	if paren := strings.IndexByte(value, '('); paren >= 0 {
		value = value[:paren]
	}
	return key, strings.TrimSpace(value), true
}

// applyVolumeFromSettings выводит рабочий объём из программных пределов
// контроллера ($130..$132, максимальный ход по осям). Ось Z у портала
// направлена вниз, поэтому её диапазон [-ход, 0]. Если пределы не
// получены, остаётся объём по умолчанию.
func (a *GrblAdapter) applyVolumeFromSettings() {
	x, okX := a.settingFloat("$130")
	y, okY := a.settingFloat("$131")
	z, okZ := a.settingFloat("$132")
	if !okX || !okY || !okZ || x <= 0 || y <= 0 || z <= 0 {
		return
	}
	volume := a.volume
	volume.XMin, volume.XMax = 0, x
	volume.YMin, volume.YMax = 0, y
	volume.ZMin, volume.ZMax = -z, 0
	if err := volume.Validate(); err != nil {
		a.logger.Warnf("Пределы из настроек отклонены: %v", err)
		return
	}
	a.volume = volume
}

func (a *GrblAdapter) settingFloat(key string) (float64, bool) {
	raw, ok := a.settings[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SaveSettingsFile записывает настройки в локальный JSON-файл через
// временный файл и переименование, чтобы читатель не увидел обрывок.
func SaveSettingsFile(path string, settings map[string]string) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// LoadSettingsFile читает локальную копию настроек. Отсутствующий или
// битый файл даёт ErrSettingsNotFound, чтобы вызывающий мог перейти к
// значениям по умолчанию.
func LoadSettingsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSettingsNotFound, err)
	}
	var settings map[string]string
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("%w: corrupt file %s: %v", ErrSettingsNotFound, path, err)
	}
	return settings, nil
}
