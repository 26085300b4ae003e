// Консоль ручного управления порталом: стрелки двигают XY, PgUp/PgDn двигают
// ось Z, свободный ввод отправляет сырые строки протокола.
package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	gantry "github.com/iwtcode/grblAdapter"
	"github.com/iwtcode/grblAdapter/models"
)

// --- STYLES ---
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#575B7E")).
			Padding(0, 1)

	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	statusKeyStyle = lipgloss.NewStyle().Bold(true)

	alarmStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
)

// --- MODEL ---
type tickMsg time.Time

type model struct {
	client    *gantry.Client
	viewport  viewport.Model
	textInput textinput.Model
	ready     bool

	step    float64
	snap    *models.MachineSnapshot
	lastErr error
	history []string
}

func newModel(client *gantry.Client) model {
	ti := textinput.New()
	ti.Placeholder = "G1 X10 F500 | $H | $X | $$"

	return model{
		client:    client,
		textInput: ti,
		step:      1.0,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// --- UPDATE ---
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.textInput.Focused() {
			switch msg.Type {
			case tea.KeyEnter:
				m.handleCommand()
				return m, nil
			case tea.KeyCtrlC, tea.KeyEsc:
				m.textInput.Blur()
				return m, nil
			}
		} else {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			case "i", "c":
				m.textInput.Focus()
				return m, nil
			case "left":
				m.jog("X", -m.step)
			case "right":
				m.jog("X", m.step)
			case "up":
				m.jog("Y", m.step)
			case "down":
				m.jog("Y", -m.step)
			case "pgup":
				m.jog("Z", m.step)
			case "pgdown":
				m.jog("Z", -m.step)
			case "+", "=":
				m.step *= 10
				if m.step > 100 {
					m.step = 100
				}
			case "-":
				m.step /= 10
				if m.step < 0.1 {
					m.step = 0.1
				}
			case "h":
				m.run("home", m.client.Home)
			case "s":
				m.client.Stop()
				m.appendHistory("! feed hold")
			case "r":
				m.run("resume", m.client.Resume)
			case "x":
				m.raw("$X")
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		statusPaneHeight := 8
		footerHeight := 4
		verticalMargin := statusPaneHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-verticalMargin)
			m.viewport.Style = baseStyle
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - verticalMargin
		}

	case tickMsg:
		snap, err := m.client.GetStatus()
		if err != nil {
			m.lastErr = err
		} else {
			m.snap = snap
			m.lastErr = nil
		}
		return m, tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
	}

	if m.textInput.Focused() {
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	} else {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) jog(axis string, distance float64) {
	if err := m.client.Jog(axis, distance); err != nil {
		m.lastErr = err
		m.appendHistory(fmt.Sprintf("jog %s%+.1f: %v", axis, distance, err))
		return
	}
	m.appendHistory(fmt.Sprintf("jog %s%+.1f", axis, distance))
}

func (m *model) run(name string, fn func() error) {
	if err := fn(); err != nil {
		m.lastErr = err
		m.appendHistory(fmt.Sprintf("%s: %v", name, err))
		return
	}
	m.appendHistory(name + ": ok")
}

func (m *model) raw(command string) {
	resp, err := m.client.ExecuteRaw(command)
	if err != nil {
		m.lastErr = err
		m.appendHistory(fmt.Sprintf("> %s: %v", command, err))
		return
	}
	m.appendHistory(fmt.Sprintf("> %s: %s", command, resp))
}

func (m *model) handleCommand() {
	input := strings.TrimSpace(m.textInput.Value())
	m.textInput.SetValue("")
	if input == "" {
		return
	}
	m.raw(input)
}

func (m *model) appendHistory(line string) {
	m.history = append(m.history, time.Now().Format("15:04:05")+" "+line)
	if len(m.history) > 200 {
		m.history = m.history[len(m.history)-200:]
	}
	if m.ready {
		m.viewport.SetContent(strings.Join(m.history, "\n"))
		m.viewport.GotoBottom()
	}
}

// --- VIEW ---
func (m model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatusPane(),
		m.viewport.View(),
		m.renderFooter(),
	)
}

func (m model) renderStatusPane() string {
	state := "-"
	position := "-"
	pins := ""
	if m.snap != nil {
		if m.snap.State == models.StateAlarm {
			state = alarmStyle.Render(m.snap.State)
		} else {
			state = okStyle.Render(m.snap.State)
		}
		position = m.snap.Position.String()
		pins = m.snap.ActivePins
	}
	errLine := ""
	if m.lastErr != nil {
		errLine = alarmStyle.Render(m.lastErr.Error())
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("GRBL Jog Console"),
		statusKeyStyle.Render("State:    ")+state,
		statusKeyStyle.Render("Position: ")+position,
		statusKeyStyle.Render("Pins:     ")+pins,
		statusKeyStyle.Render("Step:     ")+fmt.Sprintf("%.1f mm", m.step),
		errLine,
	)
	return baseStyle.Width(m.viewport.Width).Render(content)
}

func (m model) renderFooter() string {
	help := "arrows XY | pgup/pgdn Z | +/- step | (h)ome (s)top (r)esume (x) unlock | (i) raw input | (q) quit"
	if m.textInput.Focused() {
		help = "Enter command, Esc to cancel"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.textInput.View(),
		help,
	)
}

func main() {
	if err := godotenv.Load("./.env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg := gantry.Load()
	// Логи в stdout ломают отрисовку TUI.
	cfg.LogLevel = "off"

	client, err := gantry.New(cfg)
	if err != nil {
		log.Fatalf("Ошибка создания клиента: %v", err)
	}
	if err := client.Connect(); err != nil {
		log.Fatalf("Ошибка подключения: %v", err)
	}
	defer client.Disconnect()

	p := tea.NewProgram(newModel(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Ошибка TUI: %v", err)
	}
}
