package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	gantry "github.com/iwtcode/grblAdapter"
)

// runStep - обертка вокруг одного шага демонстрации: логирует начало и
// конец, фатальная ошибка останавливает сценарий.
func runStep(name string, fn func() error) {
	log.Printf("--- Запуск шага: %s ---", name)
	if err := fn(); err != nil {
		log.Fatalf("Ошибка выполнения на шаге %s: %v", name, err)
	}
	log.Printf("--- Шаг %s выполнен успешно ---", name)
	fmt.Println("==================================================")
}

func main() {
	// 1) Загрузка конфигурации
	if err := godotenv.Load("./.env"); err != nil {
		log.Printf("Warning: Could not load .env file. Using default values or environment variables: %v", err)
	}

	cfg := gantry.Load()
	log.Printf("Конфигурация загружена: Port=%q, Strategy=%s, Feed=%.1f", cfg.Port, cfg.HomingStrategy, cfg.FeedRate)

	client, err := gantry.New(cfg)
	if err != nil {
		log.Fatalf("Ошибка создания клиента: %v", err)
	}

	// 2) Подключение: поиск порта, инициализация, чтение настроек
	runStep("Connect", client.Connect)
	defer client.Disconnect()

	// 3) Настройки контроллера
	runStep("Settings", func() error {
		settings, err := client.Settings()
		if err != nil {
			log.Printf("Предупреждение: настройки недоступны: %v", err)
			return nil
		}
		printAsJSON("Settings", settings)
		printAsJSON("WorkingVolume", client.WorkingVolume())
		return nil
	})

	// 4) Хоминг (только по явному запросу: движение без оператора опасно)
	if os.Getenv("GRBL_DEMO_HOME") == "1" {
		runStep("Home", client.Home)

		runStep("MoveInstrument", func() error {
			outcome, err := client.MoveInstrumentTo("pipette", 50, 50, -5)
			if err != nil {
				return err
			}
			log.Printf("Результат перемещения: %s", outcome)
			return nil
		})
	} else {
		log.Println("GRBL_DEMO_HOME != 1, шаги с движением пропущены")
	}

	// 5) Текущее состояние и координаты
	runStep("Status", func() error {
		snap, err := client.GetStatus()
		if err != nil {
			return err
		}
		printAsJSON("MachineSnapshot", snap)
		return nil
	})

	runStep("Coordinates", func() error {
		for _, name := range client.Instruments() {
			tip, center, err := client.InstrumentCoordinates(name)
			if err != nil {
				return err
			}
			printAsJSON(name, map[string]any{"tip": tip, "center": center})
		}
		return nil
	})

	log.Println("Демонстрация завершена.")
}

// printAsJSON форматирует данные в JSON и выводит в лог
func printAsJSON(name string, data interface{}) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Printf("Ошибка маршалинга JSON для %s: %v", name, err)
		return
	}
	fmt.Printf("--- %s ---\n%s\n", name, string(jsonData))
}
