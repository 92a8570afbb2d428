package tui

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/velocity-games/slipstream/internal/race"
	"github.com/velocity-games/slipstream/internal/server"
)

// ServerMsg wraps an incoming server message for the update loop.
type ServerMsg struct {
	Message *server.Message
}

// DisconnectMsg signals that the connection dropped.
type DisconnectMsg struct {
	Err error
}

// Model is the Bubble Tea model for the race client.
type Model struct {
	client *Client
	logger *log.Logger

	logViewport viewport.Model
	actionInput textinput.Model

	gameLog     []string
	quitting    bool
	focusedPane int // 0 = log, 1 = input

	playerName  string
	resumeToken string
	room        string
	seat        int
	view        *race.PlayerView

	width       int
	height      int
	initialized bool
}

// NewModel creates the client model.
func NewModel(client *Client, playerName string, logger *log.Logger) *Model {
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "gear 3, play 1 2, cool 1, boost, slip yes, discard, done"
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 100
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	return &Model{
		client:      client,
		logger:      logger.WithPrefix("tui"),
		logViewport: vp,
		actionInput: ti,
		gameLog:     []string{},
		playerName:  playerName,
		seat:        -1,
		focusedPane: 1,
	}
}

// ResumeToken returns the token handed out by the server, for reconnects.
func (m *Model) ResumeToken() string { return m.resumeToken }

// AddLogEntry appends a line to the game log.
func (m *Model) AddLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	m.logViewport.GotoBottom()
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ServerMsg:
		m.handleServerMessage(msg.Message)

	case DisconnectMsg:
		m.AddLogEntry(ErrorStyle.Render(fmt.Sprintf("Connection lost: %v", msg.Err)))

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Sequence(tea.ClearScreen, tea.Quit)
		case "tab":
			if m.focusedPane == 0 {
				m.focusedPane = 1
				m.actionInput.Focus()
			} else {
				m.focusedPane = 0
				m.actionInput.Blur()
			}
		case "enter":
			if m.focusedPane == 1 {
				input := strings.TrimSpace(m.actionInput.Value())
				if input != "" {
					m.processCommand(input)
				}
				m.actionInput.SetValue("")
			}
		case "up", "k":
			if m.focusedPane == 0 {
				m.logViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.focusedPane == 0 {
				m.logViewport.ScrollDown(1)
			}
		case "pgup":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageUp()
			}
		case "pgdown":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageDown()
			}
		}
	}

	var cmd tea.Cmd
	if m.focusedPane == 1 {
		m.actionInput, cmd = m.actionInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) handleServerMessage(msg *server.Message) {
	switch msg.Type {
	case server.MessageTypeWelcome:
		var data server.WelcomeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		m.resumeToken = data.ResumeToken
		m.AddLogEntry(SuccessStyle.Render("Identified as " + m.playerName))

	case server.MessageTypeRoomJoined:
		var data server.RoomJoinedData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		m.room = data.Room
		m.seat = data.Seat
		m.AddLogEntry(SuccessStyle.Render(fmt.Sprintf(
			"Joined room %s on track %s (seat %d, %d drivers)",
			data.Room, data.Track, data.Seat, len(data.Players))))

	case server.MessageTypePhaseChanged:
		var data server.PhaseChangedData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		m.view = data.View
		line := fmt.Sprintf("Round %d: %s", data.Round, data.Phase)
		if data.RemainingMs > 0 {
			line += fmt.Sprintf(" (%ds)", data.RemainingMs/1000)
		}
		m.AddLogEntry(HeaderStyle.Render(line))
		if hint := m.phaseHint(data.Phase); hint != "" {
			m.AddLogEntry(InfoStyle.Render(hint))
		}

	case server.MessageTypeStateUpdate:
		var data server.StateUpdateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		m.view = data.View

	case server.MessageTypeActionRejected:
		var data server.ActionRejectedData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		m.AddLogEntry(ErrorStyle.Render(fmt.Sprintf("Rejected (%s): %s", data.Code, data.Message)))

	case server.MessageTypeRaceFinished:
		var data server.RaceFinishedData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		m.AddLogEntry(HeaderStyle.Render("Race finished"))
		for i, standing := range data.Standings {
			m.AddLogEntry(fmt.Sprintf("  %d. %s (%d laps)", i+1, standing.ID, standing.LapCount))
		}
		for seatNum, rounds := range data.LapRounds {
			m.AddLogEntry(fmt.Sprintf("  seat %d lap rounds: %v", seatNum, rounds))
		}

	case server.MessageTypeError:
		var data server.ErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		m.AddLogEntry(ErrorStyle.Render(fmt.Sprintf("Error (%s): %s", data.Code, data.Message)))
	}
}

func (m *Model) phaseHint(phase race.Phase) string {
	if m.view == nil {
		return ""
	}
	switch phase {
	case race.PhaseGearShift:
		return fmt.Sprintf("Pick a gear (current %d): gear <1-4>", m.currentGear())
	case race.PhasePlayCards:
		return fmt.Sprintf("Play %d card(s) for your gear: play <hand indexes>", m.currentGear())
	case race.PhaseReact:
		if m.view.ActivePlayer == m.seat {
			return "Your reaction: cool <heat indexes>, boost, or done"
		}
	case race.PhaseSlipstream:
		if m.view.ActivePlayer == m.seat {
			return "Slipstream available: slip yes or slip no"
		}
	case race.PhaseDiscard:
		return "Discard unwanted speed cards: discard [indexes] or discard"
	}
	return ""
}

func (m *Model) currentGear() int {
	if m.view == nil || m.seat < 0 || m.seat >= len(m.view.Seats) {
		return 0
	}
	return m.view.Seats[m.seat].Gear
}

// processCommand parses a line of input and issues the matching request.
// Hand indexes are 1-based at the prompt.
func (m *Model) processCommand(input string) {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	var err error
	switch cmd {
	case "quit", "exit":
		m.quitting = true
		_ = m.client.Disconnect()
	case "join":
		room := ""
		if len(args) > 0 {
			room = args[0]
		}
		err = m.client.JoinRoom(room)
	case "gear":
		if len(args) != 1 {
			m.AddLogEntry(WarningStyle.Render("usage: gear <1-4>"))
			return
		}
		var gear int
		if gear, err = strconv.Atoi(args[0]); err != nil {
			m.AddLogEntry(WarningStyle.Render("usage: gear <1-4>"))
			return
		}
		err = m.client.Action(server.MessageTypeGearShift, server.GameActionData{Gear: gear})
	case "play":
		indexes, parseErr := parseIndexes(args)
		if parseErr != nil {
			m.AddLogEntry(WarningStyle.Render(parseErr.Error()))
			return
		}
		err = m.client.Action(server.MessageTypePlayCards, server.GameActionData{Cards: indexes})
	case "cool":
		indexes, parseErr := parseIndexes(args)
		if parseErr != nil {
			m.AddLogEntry(WarningStyle.Render(parseErr.Error()))
			return
		}
		err = m.client.Action(server.MessageTypeReactCooldown, server.GameActionData{Cards: indexes})
	case "boost":
		err = m.client.Action(server.MessageTypeReactBoost, server.GameActionData{})
	case "done":
		err = m.client.Action(server.MessageTypeReactDone, server.GameActionData{})
	case "slip":
		accept := len(args) > 0 && (args[0] == "yes" || args[0] == "y")
		err = m.client.Action(server.MessageTypeSlipstream, server.GameActionData{Accept: accept})
	case "discard":
		indexes, parseErr := parseIndexes(args)
		if parseErr != nil {
			m.AddLogEntry(WarningStyle.Render(parseErr.Error()))
			return
		}
		err = m.client.Action(server.MessageTypeDiscard, server.GameActionData{Cards: indexes})
	default:
		m.AddLogEntry(WarningStyle.Render("unknown command: " + cmd))
		return
	}
	if err != nil {
		m.AddLogEntry(ErrorStyle.Render(fmt.Sprintf("Send failed: %v", err)))
	}
}

// parseIndexes converts 1-based prompt indexes to the wire's 0-based form.
func parseIndexes(args []string) ([]int, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("bad card index %q, indexes start at 1", arg)
		}
		out = append(out, n-1)
	}
	return out, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent)
	actionWidth := max(m.width-2, 1)

	actionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#04B575")).
		Width(actionWidth).
		Height(max(actionHeight-2, 1))
	actionPane := actionStyle.Render(actionContent)

	sidebarContent := m.renderSidebarPane()
	sidebarWidth := max(lipgloss.Width(sidebarContent), 28)
	sidebarHeight := max(m.height-actionHeight-4, 1)

	sidebarStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(sidebarWidth).
		Height(sidebarHeight)
	sidebarPane := sidebarStyle.Render(sidebarContent)

	logWidth := max(m.width-sidebarWidth-4, 1)
	logHeight := max(m.height-actionHeight-4, 1)
	m.logViewport.Width = logWidth
	m.logViewport.Height = logHeight
	if !m.initialized && logWidth > 1 && logHeight > 1 {
		m.logViewport.GotoBottom()
		m.initialized = true
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(logWidth).
		Height(logHeight)
	if m.focusedPane == 0 {
		logStyle = logStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	logPane := logStyle.Render(m.logViewport.View())

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, topRow, actionPane)
}

func (m *Model) renderSidebarPane() string {
	var b strings.Builder

	if m.view == nil {
		b.WriteString(InfoStyle.Render("Waiting for race..."))
		return b.String()
	}

	b.WriteString(WarningStyle.Render(fmt.Sprintf("Round %d | %s", m.view.Round, m.view.Phase)))
	b.WriteString("\n")
	b.WriteString(InfoStyle.Render(fmt.Sprintf("Lap target %d | %d spaces", m.view.LapTarget, m.view.TotalSpaces)))
	b.WriteString("\n\n")

	for _, seat := range m.view.Seats {
		marker := "  "
		if seat.Player == m.seat {
			marker = "* "
		} else if seat.Player == m.view.ActivePlayer {
			marker = "> "
		}
		b.WriteString(fmt.Sprintf("%s%s\n", marker, seat.ID))
		b.WriteString(InfoStyle.Render(fmt.Sprintf("   gear %d | pos %d | lap %d | spd %d\n",
			seat.Gear, seat.Position, seat.LapCount, seat.Speed)))
		b.WriteString(InfoStyle.Render(fmt.Sprintf("   hand %d | engine %d | discard %d\n",
			seat.HandSize, seat.EngineSize, seat.DiscardSize)))
	}

	return b.String()
}

func (m *Model) renderActionPane() string {
	var b strings.Builder

	if m.view != nil {
		b.WriteString(GearStyle.Render(fmt.Sprintf("Gear %d", m.currentGear())))
		b.WriteString("  ")
		b.WriteString(m.renderHand())
		b.WriteString("\n")
		if len(m.view.EngineZone) > 0 {
			b.WriteString(HeatCardStyle.Render(fmt.Sprintf("Engine: %d heat", len(m.view.EngineZone))))
			b.WriteString("  ")
		}
		b.WriteString(InfoStyle.Render(fmt.Sprintf("Draw: %d  Discard: %d", m.view.DrawPileSize, len(m.view.DiscardPile))))
		b.WriteString("\n")
	}

	b.WriteString(m.actionInput.View())
	b.WriteString("\n")
	if m.focusedPane == 0 {
		b.WriteString(InfoStyle.Render("Log focused: ↑↓ scroll, Tab to input"))
	} else {
		b.WriteString(InfoStyle.Render("Tab to scroll log • Enter to submit • Ctrl+C to quit"))
	}
	return b.String()
}

func (m *Model) renderHand() string {
	if m.view == nil || len(m.view.Hand) == 0 {
		return InfoStyle.Render("(empty hand)")
	}
	parts := make([]string, len(m.view.Hand))
	for i, card := range m.view.Hand {
		label := fmt.Sprintf("%d:%s", i+1, card)
		if !ColorEnabled() {
			parts[i] = label
			continue
		}
		switch card.Kind {
		case race.SpeedCard:
			parts[i] = SpeedCardStyle.Render(label)
		case race.HeatCard:
			parts[i] = HeatCardStyle.Render(label)
		case race.StressCard:
			parts[i] = StressCardStyle.Render(label)
		default:
			parts[i] = label
		}
	}
	return strings.Join(parts, " ")
}
