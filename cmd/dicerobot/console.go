package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"golang.org/x/crypto/bcrypt"

	"github.com/dicerobot/dicerobot/pkg/app"
	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/database"
	"github.com/dicerobot/dicerobot/pkg/gateway"
	"github.com/dicerobot/dicerobot/pkg/report"
)

// Identities used by the local console.
const (
	consoleSelfID   int64 = 10000
	consoleUserID   int64 = 10001
	consoleNickname       = "console"
)

// consoleGateway prints outgoing messages instead of sending them. Every
// other call goes to the configured gateway.
type consoleGateway struct {
	app.Gateway
	out io.Writer
}

func (g *consoleGateway) SendPrivateMessage(ctx context.Context, userID, groupID int64, message report.Segments) (*gateway.MessageResult, error) {
	fmt.Fprintf(g.out, "\n%s %s\n\n", logo, renderSegments(message))
	return &gateway.MessageResult{MessageID: time.Now().UnixNano()}, nil
}

func (g *consoleGateway) SendGroupMessage(ctx context.Context, groupID int64, message report.Segments) (*gateway.MessageResult, error) {
	fmt.Fprintf(g.out, "\n%s [group %d] %s\n\n", logo, groupID, renderSegments(message))
	return &gateway.MessageResult{MessageID: time.Now().UnixNano()}, nil
}

func (g *consoleGateway) GetLoginInfo(ctx context.Context) (*gateway.LoginInfo, error) {
	return &gateway.LoginInfo{UserID: consoleSelfID, Nickname: "DiceRobot"}, nil
}

func (g *consoleGateway) GetFriendList(ctx context.Context) ([]gateway.Friend, error) {
	return []gateway.Friend{{UserID: consoleUserID, Nickname: consoleNickname}}, nil
}

func (g *consoleGateway) GetGroupList(ctx context.Context) ([]gateway.Group, error) {
	return nil, nil
}

func renderSegments(message report.Segments) string {
	var sb strings.Builder
	for _, seg := range message {
		switch s := seg.(type) {
		case *report.Text:
			sb.WriteString(s.Text)
		case *report.Image:
			fmt.Fprintf(&sb, "[image %s]", s.File)
		case *report.At:
			sb.WriteString("@" + s.QQ)
		}
	}
	return sb.String()
}

var consoleMessageID atomic.Int64

func consoleMessage(text string) *report.PrivateMessage {
	return &report.PrivateMessage{
		MessageHeader: report.MessageHeader{
			Time:        time.Now().Unix(),
			SelfID:      consoleSelfID,
			PostType:    report.PostTypeMessage,
			MessageType: "private",
			SubType:     "friend",
			MessageID:   consoleMessageID.Add(1),
			UserID:      consoleUserID,
			Message:     report.TextSegments(text),
			RawMessage:  text,
		},
		Sender: report.PrivateSender{
			UserID:   consoleUserID,
			Nickname: consoleNickname,
		},
	}
}

func consoleCmd(env *config.Env) {
	ctx := context.Background()
	settings, err := loadSettings(env)
	if err != nil {
		fmt.Printf("Error loading settings: %v\n", err)
		os.Exit(1)
	}

	gw := &consoleGateway{
		Gateway: gateway.NewClient(gateway.Config{
			BaseURL:     settings.Gateway.APIBaseURL,
			AccessToken: settings.Gateway.AccessToken,
			UserAgent:   "DiceRobot/" + app.Version,
		}),
		out: os.Stdout,
	}
	a, err := app.New(ctx, app.Options{Env: env, Gateway: gw})
	if err != nil {
		fmt.Printf("Error starting dicerobot: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Lifecycle.CheckStatus(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("%s Console mode, orders start with . (Ctrl+C to exit)\n\n", logo)
	interactiveMode(ctx, a)
}

func interactiveMode(ctx context.Context, a *app.App) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s You: ", logo),
		HistoryFile:     filepath.Join(os.TempDir(), ".dicerobot_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctx, a)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleLine(ctx, a, line) {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, a *app.App) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s You: ", logo)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleLine(ctx, a, line) {
			return
		}
	}
}

// handleLine dispatches one input line. It returns false when the user
// asked to leave.
func handleLine(ctx context.Context, a *app.App, line string) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return true
	case "exit", "quit":
		fmt.Println("Goodbye!")
		return false
	}

	if err := a.Dispatcher.DispatchMessage(ctx, consoleMessage(input)); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	return true
}

func openStore(env *config.Env) (*config.Store, func(), error) {
	db, err := database.Open(database.DefaultConfig(env.Database))
	if err != nil {
		return nil, nil, err
	}
	store := config.NewStore(db)
	if err := store.Load(context.Background()); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

func loadSettings(env *config.Env) (config.Settings, error) {
	store, closeDB, err := openStore(env)
	if err != nil {
		return config.Settings{}, err
	}
	defer closeDB()
	return store.Settings(), nil
}

func passwdCmd(env *config.Env) {
	store, closeDB, err := openStore(env)
	if err != nil {
		fmt.Printf("Error loading settings: %v\n", err)
		os.Exit(1)
	}
	defer closeDB()

	rl, err := readline.New("")
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	password, err := rl.ReadPassword("New admin password: ")
	if err != nil {
		fmt.Printf("Error reading password: %v\n", err)
		os.Exit(1)
	}
	confirm, err := rl.ReadPassword("Repeat password: ")
	if err != nil {
		fmt.Printf("Error reading password: %v\n", err)
		os.Exit(1)
	}

	if err := setAdminPassword(store, string(password), string(confirm)); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Admin password updated")
}

func setAdminPassword(store *config.Store, password, confirm string) error {
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	store.UpdateSettings(func(s *config.Settings) {
		s.Security.Admin.PasswordHash = string(hash)
	})
	_, err = store.Save(context.Background())
	return err
}
