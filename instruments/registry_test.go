package instruments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iwtcode/grblAdapter/models"
)

func TestLoadRegistryCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.json")

	r, err := LoadRegistry(path, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"center", "pipette", "probe", "sensor"}, r.Names())

	center, err := r.Offset("center")
	require.NoError(t, err)
	require.Equal(t, models.NewCoordinate(0, 0, 0), center)

	// Набор по умолчанию сразу персистирован.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []models.InstrumentOffset
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 4)
}

func TestLoadRegistryReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.json")
	records := []models.InstrumentOffset{
		{Name: "gripper", X: 10, Y: -5, Z: -30},
	}
	data, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	r, err := LoadRegistry(path, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"gripper"}, r.Names())

	off, err := r.Offset("gripper")
	require.NoError(t, err)
	require.Equal(t, models.NewCoordinate(10, -5, -30), off)
}

func TestLoadRegistryCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	_, err := LoadRegistry(path, nil)
	require.Error(t, err)
}

func TestOffsetUnknownInstrument(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "offsets.json"), nil)
	require.NoError(t, err)

	_, err = r.Offset("laser")
	require.Error(t, err)
	require.Contains(t, err.Error(), "laser")
}

func TestUpdateOffsetPersistsDelta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.json")
	r, err := LoadRegistry(path, nil)
	require.NoError(t, err)

	require.NoError(t, r.UpdateOffset("pipette", 0.5, -0.25, 1.0))

	off, err := r.Offset("pipette")
	require.NoError(t, err)
	require.Equal(t, models.NewCoordinate(-28.0, 3.75, -17.0), off)

	// Дельта видна после перечитывания файла.
	reloaded, err := LoadRegistry(path, nil)
	require.NoError(t, err)
	off, err = reloaded.Offset("pipette")
	require.NoError(t, err)
	require.Equal(t, models.NewCoordinate(-28.0, 3.75, -17.0), off)
}

func TestUpdateOffsetUnknownInstrument(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "offsets.json"), nil)
	require.NoError(t, err)

	require.Error(t, r.UpdateOffset("laser", 1, 1, 1))
}

func TestRegisterAddsInstrument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.json")
	r, err := LoadRegistry(path, nil)
	require.NoError(t, err)

	require.NoError(t, r.Register("gripper", models.NewCoordinate(12, 0, -22)))
	require.Error(t, r.Register("", models.NewCoordinate(0, 0, 0)))

	reloaded, err := LoadRegistry(path, nil)
	require.NoError(t, err)
	off, err := reloaded.Offset("gripper")
	require.NoError(t, err)
	require.Equal(t, models.NewCoordinate(12, 0, -22), off)
}
