// Интеграционные тесты с живым контроллером. Запускаются только при
// GRBL_HW_TESTS=1: для них нужен подключённый станок.
package tests

import (
	"encoding/json"
	"log"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	gantry "github.com/iwtcode/grblAdapter"
)

func setupTest(t *testing.T) *gantry.Client {
	err := godotenv.Load("../.env")
	if err != nil {
		log.Printf("Warning: Could not load .env file from ../.env. Using default values or environment variables: %v", err)
	}

	if os.Getenv("GRBL_HW_TESTS") != "1" {
		t.Skip("GRBL_HW_TESTS != 1, пропускаю тест с живым контроллером")
	}

	cfg := gantry.Load()
	log.Printf("Конфигурация загружена: Port=%q, Strategy=%s", cfg.Port, cfg.HomingStrategy)
	require.NotNil(t, cfg, "Конфигурация не была загружена")

	c, err := gantry.New(cfg)
	require.NoError(t, err, "Не удалось создать клиента")
	require.NotNil(t, c, "Клиент не должен быть nil")

	err = c.Connect()
	require.NoError(t, err, "Не удалось подключиться к контроллеру")
	log.Println("Успешно подключено!")

	return c
}

func logAsJSON(t *testing.T, name string, data interface{}) {
	t.Helper()
	jsonData, err := json.MarshalIndent(data, "", "  ")
	require.NoError(t, err, "Ошибка маршалинга JSON для %s", name)
	log.Printf("--- %s ---\n%s", name, string(jsonData))
}

func TestConnectAndStatus(t *testing.T) {
	c := setupTest(t)
	defer c.Disconnect()

	require.True(t, c.IsHealthy(), "Станок должен быть в рабочем состоянии")

	snap, err := c.GetStatus()
	require.NoError(t, err, "Не удалось прочитать статус")
	logAsJSON(t, "MachineSnapshot", snap)
}

func TestReadSettings(t *testing.T) {
	c := setupTest(t)
	defer c.Disconnect()

	settings, err := c.Settings()
	require.NoError(t, err, "Не удалось прочитать настройки")
	require.NotEmpty(t, settings)
	logAsJSON(t, "Settings", settings)
	logAsJSON(t, "WorkingVolume", c.WorkingVolume())
}

func TestHomeAndReadCoordinates(t *testing.T) {
	c := setupTest(t)
	defer c.Disconnect()

	err := c.Home()
	require.NoError(t, err, "Хоминг завершился ошибкой")
	require.True(t, c.Homed(), "Станок должен быть отхомлен")

	coords, err := c.GetCoordinates()
	require.NoError(t, err, "Не удалось прочитать координаты")
	logAsJSON(t, "Coordinates", coords)
}

func TestInstrumentCoordinates(t *testing.T) {
	c := setupTest(t)
	defer c.Disconnect()

	for _, name := range c.Instruments() {
		tip, center, err := c.InstrumentCoordinates(name)
		require.NoError(t, err, "Не удалось прочитать координаты инструмента %s", name)
		logAsJSON(t, name, map[string]interface{}{"tip": tip, "center": center})
	}
}

func TestSafeMoveRoundTrip(t *testing.T) {
	c := setupTest(t)
	defer c.Disconnect()

	require.NoError(t, c.Home(), "Хоминг завершился ошибкой")

	outcome, err := c.MoveTo(50, 50, -5)
	require.NoError(t, err, "Перемещение завершилось ошибкой")
	logAsJSON(t, "MoveOutcome", outcome)

	// Повтор той же цели обязан быть пропущен без единой команды.
	outcome, err = c.MoveTo(50, 50, -5)
	require.NoError(t, err)
	require.Equal(t, "skipped", string(outcome))
}

func TestExecuteRaw(t *testing.T) {
	c := setupTest(t)
	defer c.Disconnect()

	resp, err := c.ExecuteRaw("G90")
	require.NoError(t, err, "Команда G90 завершилась ошибкой")
	logAsJSON(t, "RawResponse", resp)
}
