package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/velocity-games/slipstream/internal/server"
	"github.com/velocity-games/slipstream/internal/tui"
)

var CLI struct {
	Server   string `short:"s" long:"server" default:"http://localhost:8080" help:"Server URL to connect to"`
	Player   string `short:"p" long:"player" help:"Player name"`
	Room     string `short:"r" long:"room" help:"Room to join on connect"`
	Resume   string `long:"resume" help:"Resume token from a previous session"`
	LogLevel string `short:"l" long:"log-level" default:"info" help:"Log level"`
	LogFile  string `long:"log-file" default:"slipstream-client.log" help:"Log file path"`
}

func main() {
	kctx := kong.Parse(&CLI)

	playerName := CLI.Player
	if playerName == "" {
		fmt.Print("Enter your driver name: ")
		var input string
		_, _ = fmt.Scanln(&input)
		playerName = strings.TrimSpace(input)
		if playerName == "" {
			fmt.Println("Driver name is required")
			kctx.Exit(1)
		}
	}

	// The terminal belongs to the TUI, so logs go to a file
	logFile, err := os.OpenFile(CLI.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		fmt.Printf("Failed to open log file: %v\n", err)
		kctx.Exit(1)
	}
	defer func() { _ = logFile.Close() }()

	logger := log.New(logFile)
	switch CLI.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	logger.Info("Starting Slipstream Client", "server", CLI.Server, "player", playerName)

	client := tui.NewClient(CLI.Server, logger)
	model := tui.NewModel(client, playerName, logger)
	program := tea.NewProgram(model, tea.WithAltScreen())

	client.OnMessage(func(msg *server.Message) {
		program.Send(tui.ServerMsg{Message: msg})
	})
	client.OnClose(func(err error) {
		program.Send(tui.DisconnectMsg{Err: err})
	})

	if err := client.Connect(); err != nil {
		fmt.Printf("Failed to connect to server: %v\n", err)
		kctx.Exit(1)
	}
	defer func() { _ = client.Disconnect() }()

	if err := client.Hello(playerName, CLI.Resume); err != nil {
		fmt.Printf("Failed to identify: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.Room != "" || CLI.Resume != "" {
		if err := client.JoinRoom(CLI.Room); err != nil {
			fmt.Printf("Failed to join room: %v\n", err)
			kctx.Exit(1)
		}
	}

	model.AddLogEntry("=== Slipstream Racing Client ===")
	model.AddLogEntry("Connected to server: " + CLI.Server)
	model.AddLogEntry("Driver: " + playerName)
	model.AddLogEntry("")
	model.AddLogEntry("Commands:")
	model.AddLogEntry("  join [room]     - join a race room")
	model.AddLogEntry("  gear <1-4>      - pick your gear")
	model.AddLogEntry("  play <i> <j>    - play hand cards by index")
	model.AddLogEntry("  cool <i>        - cool down heat from hand")
	model.AddLogEntry("  boost           - spend heat for extra speed")
	model.AddLogEntry("  slip yes|no     - take or decline a slipstream")
	model.AddLogEntry("  discard [i...]  - discard speed cards")
	model.AddLogEntry("  done            - end your reaction")
	model.AddLogEntry("  quit            - leave the race")
	model.AddLogEntry("")

	if _, err := program.Run(); err != nil {
		fmt.Printf("Error running client: %v\n", err)
		kctx.Exit(1)
	}
}
