// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL for gemrun.
//
// Input is read with peterh/liner (line editing, persistent history).
// Ctrl+C cancels the in-flight request without leaving the chat;
// Ctrl+D or quit/exit ends the session and prints a summary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/gemrun/internal/config"
	"github.com/jeranaias/gemrun/internal/gemini"
	"github.com/jeranaias/gemrun/internal/model"
	"github.com/jeranaias/gemrun/internal/session"
	"github.com/jeranaias/gemrun/internal/util"
)

// =============================================================================
// INPUT HANDLING
// =============================================================================

// ChatCLI wraps liner for line-edited input with persistent history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new input reader with history loaded from the
// config directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile, err := config.InputHistoryPath()
	if err != nil {
		historyFile = filepath.Join(os.TempDir(), "gemrun_history")
	}

	c := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}
	c.loadHistory()
	return c
}

func (c *ChatCLI) loadHistory() {
	f, err := os.Open(c.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.ReadHistory(f)
}

// ReadInput reads one line of input. Non-empty lines are added to the
// history buffer.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists the input history with restrictive permissions.
func (c *ChatCLI) saveHistory() error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(c.historyFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = c.line.WriteHistory(f)
	return err
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() error {
	if err := c.saveHistory(); err != nil {
		fmt.Fprintf(os.Stderr, "%s could not save input history: %v\n",
			WarningStyle.Render("[Warning]"), err)
	}
	return c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// chatState carries the session plus the REPL-level bits: output
// options, the cancel hook the signal handler fires on Ctrl+C, and
// the pending model change queued by the config watcher.
type chatState struct {
	session  *session.Session
	markdown bool
	quiet    bool

	// modelCh hands config-file model changes to the loop goroutine.
	// The client's With* builders are not safe against in-flight
	// requests, so only the loop applies them.
	modelCh chan string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// queueModelChange records a model change for the loop to apply.
// A newer change replaces an unapplied older one. Single producer.
func (c *chatState) queueModelChange(model string) {
	select {
	case <-c.modelCh:
	default:
	}
	c.modelCh <- model
}

// applyPendingModel applies a queued model change, if any. Called on
// the loop goroutine between reading input and dispatching, so it
// never races a request.
func (c *chatState) applyPendingModel() {
	select {
	case m := <-c.modelCh:
		if m != "" && m != c.session.Model() {
			c.session.Client().WithModel(m)
			fmt.Fprintf(os.Stderr, "%s model changed to %s\n",
				DimStyle.Render("[Config]"), m)
		}
	default:
	}
}

func (c *chatState) setCancel(fn context.CancelFunc) {
	c.mu.Lock()
	c.cancel = fn
	c.mu.Unlock()
}

// cancelInFlight cancels the current request, if any. Safe to call
// from the signal goroutine.
func (c *chatState) cancelInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		return true
	}
	return false
}

// HandleChatCommand runs the interactive chat loop.
func HandleChatCommand(args Args) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	cfg := config.Global()
	if args.Model != "" {
		cfg.API.Model = args.Model
	}

	sess, err := session.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "%s could not save transcript: %v\n",
				WarningStyle.Render("[Warning]"), err)
		}
	}()

	state := &chatState{
		session:  sess,
		markdown: cfg.UI.Markdown && !args.NoMarkdown && IsStdoutTTY(),
		quiet:    args.Quiet,
		modelCh:  make(chan string, 1),
	}

	// Ctrl+C cancels the in-flight request instead of killing the
	// process. A second Ctrl+C at the prompt is handled by liner.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if state.cancelInFlight() {
				fmt.Fprintln(os.Stderr, DimStyle.Render("[Cancelled]"))
			}
		}
	}()

	// Pick up config edits made while the chat is open. Only the model
	// takes effect live; an explicit --model flag pins it. The change
	// is queued here and applied by the loop goroutine, never directly.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go func() {
		_ = config.Watch(watchCtx, func(fresh *config.Config) {
			if args.Model == "" {
				state.queueModelChange(fresh.API.Model)
			}
		})
	}()

	input := NewChatCLI()
	defer input.Close()

	if !args.Quiet {
		printWelcome(state)
	}

	prompt := PromptStyle.Render("you> ")
	for {
		text, err := input.ReadInput(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				printExitSummary(state)
				return nil
			}
			return err
		}

		// Safe here: nothing is in flight between prompts.
		state.applyPendingModel()

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "/") {
			keep, err := handleSlashCommand(text, state)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if !keep {
				printExitSummary(state)
				return nil
			}
			continue
		}

		// Bare control tokens work without the slash prefix.
		switch strings.ToLower(text) {
		case "quit", "exit":
			printExitSummary(state)
			return nil
		case "clear":
			state.session.Clear()
			fmt.Println(CommandStyle.Render("[Conversation cleared]"))
			continue
		}

		// Dispatch failures are displayed and the loop continues;
		// the session survives every classified error.
		if err := processMessage(state, text); err != nil {
			DisplayError(err)
		}
	}
}

// processMessage sends one message and displays the reply.
func processMessage(state *chatState, text string) error {
	ctx, cancel := context.WithCancel(context.Background())
	state.setCancel(cancel)
	defer func() {
		state.setCancel(nil)
		cancel()
	}()

	reply, err := state.session.Send(ctx, text)
	if err != nil {
		return err
	}

	fmt.Println()
	displayResponse(reply, state.markdown)
	fmt.Println()

	if !state.quiet {
		showBriefStats(state)
	}
	return nil
}

// showBriefStats prints a one-line usage summary after a reply.
func showBriefStats(state *chatState) {
	stats := state.session.Stats()
	fmt.Fprintf(os.Stderr, "%s %s tokens | %.0f%% context | %s\n",
		DimStyle.Render("[Stats]"),
		util.FormatCount(stats.TokensUsed),
		state.session.ContextPercent(),
		stats.TotalDuration.Round(time.Millisecond))
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (keepRunning, error) where keepRunning=false means exit.
func handleSlashCommand(cmd string, state *chatState) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printChatHelp()
		return true, nil

	case "/clear", "/c":
		state.session.Clear()
		fmt.Println(CommandStyle.Render("[Conversation cleared]"))
		return true, nil

	case "/model", "/m":
		return handleModelCommand(state, args)

	case "/status", "/s":
		printStatus(state)
		return true, nil

	case "/history":
		printChatHistory(state)
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// handleModelCommand shows or switches the session model.
// Switching is checked against the live model list but not enforced,
// so preview models the listing omits still work.
func handleModelCommand(state *chatState, args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Printf("%s Current model: %s\n",
			DimStyle.Render("[Model]"),
			ModelStyle.Render(state.session.Model()))
		return true, nil
	}

	newModel := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if models, err := state.session.Client().ListModels(ctx); err == nil {
		known := false
		for _, m := range models {
			if strings.TrimPrefix(m.Name, "models/") == newModel {
				known = true
				break
			}
		}
		if !known {
			fmt.Fprintf(os.Stderr, "%s model %q not in the published list, using it anyway\n",
				WarningStyle.Render("[Warning]"), newModel)
		}
	}

	state.session.Client().WithModel(newModel)
	fmt.Printf("%s Switched to model: %s\n",
		SuccessStyle.Render("[OK]"),
		ModelStyle.Render(newModel))
	return true, nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func printWelcome(state *chatState) {
	fmt.Println()
	fmt.Println(TitleStyle.Render("gemrun interactive chat"))
	fmt.Println(RenderSeparator(30))
	fmt.Printf("%s %s\n",
		LabelStyle.Render("Model:"),
		ModelStyle.Render(state.session.Model()))

	if state.session.Client().IsConfigured() {
		fmt.Printf("%s %s\n",
			LabelStyle.Render("API key:"),
			SuccessStyle.Render("Configured"))
	} else {
		fmt.Printf("%s %s\n",
			LabelStyle.Render("API key:"),
			WarningStyle.Render("Not set (set GEMINI_API_KEY)"))
	}

	fmt.Println()
	fmt.Println(DimStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

func printChatHelp() {
	fmt.Println()
	fmt.Println(SectionStyle.Render("Available Commands"))
	fmt.Println(RenderSeparator(20))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Clear conversation history"},
		{"/model [name]", "Show or switch model"},
		{"/status, /s", "Show session statistics"},
		{"/history", "Show conversation so far"},
		{"/quit, /q", "Exit chat"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			CommandStyle.Render(fmt.Sprintf("%-15s", c.cmd)),
			DimStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(DimStyle.Render("Tip: Ctrl+C cancels the current request, Ctrl+D exits"))
	fmt.Println()
}

func printStatus(state *chatState) {
	stats := state.session.Stats()
	elapsed := state.session.Duration().Round(time.Second)

	fmt.Println()
	fmt.Println(SectionStyle.Render("Session Status"))
	fmt.Println(RenderSeparator(20))
	fmt.Println()

	fmt.Printf("  %s %s\n",
		LabelStyle.Render("Model:"),
		ModelStyle.Render(state.session.Model()))
	fmt.Printf("  %s %s\n",
		LabelStyle.Render("API key:"),
		DimStyle.Render(state.session.Client().APIKeyMasked()))
	fmt.Printf("  %s %s\n",
		LabelStyle.Render("Duration:"),
		elapsed.String())
	fmt.Printf("  %s %d messages\n",
		LabelStyle.Render("History:"),
		state.session.Conversation.MessageCount())
	fmt.Printf("  %s %.1f%% of %s tokens\n",
		LabelStyle.Render("Context:"),
		state.session.ContextPercent(),
		util.FormatCount(gemini.MaxContextTokens))

	fmt.Println()
	fmt.Println(DimStyle.Render("Statistics:"))
	fmt.Printf("  %s %d\n", LabelStyle.Render("Queries:"), stats.Queries)
	fmt.Printf("  %s %d\n", LabelStyle.Render("Errors:"), stats.Errors)
	fmt.Printf("  %s %s\n", LabelStyle.Render("Tokens:"), util.FormatCount(stats.TokensUsed))
	fmt.Printf("  %s %s\n", LabelStyle.Render("API time:"), stats.TotalDuration.Round(time.Millisecond))
	fmt.Println()
}

func printChatHistory(state *chatState) {
	messages := state.session.Conversation.Snapshot()
	if len(messages) == 0 {
		fmt.Println(DimStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	fmt.Println(SectionStyle.Render("Conversation History"))
	fmt.Println(RenderSeparator(25))
	fmt.Println()

	for i, msg := range messages {
		role := msg.Role.DisplayName()
		switch msg.Role {
		case model.RoleUser:
			role = PromptStyle.Render(role)
		case model.RoleModel:
			role = ModelStyle.Render(role)
		}
		fmt.Printf("  %d. %s: %s\n", i+1, role, msg.Preview(100))
	}

	fmt.Println()
}

func printExitSummary(state *chatState) {
	stats := state.session.Stats()

	if stats.Queries == 0 {
		fmt.Println(DimStyle.Render("Goodbye!"))
		return
	}

	elapsed := state.session.Duration().Round(time.Second)

	fmt.Println()
	fmt.Println(SectionStyle.Render("Session Summary"))
	fmt.Println(RenderSeparator(15))
	fmt.Printf("  %s %d\n", LabelStyle.Render("Queries:"), stats.Queries)
	fmt.Printf("  %s %s\n", LabelStyle.Render("Tokens:"), util.FormatCount(stats.TokensUsed))
	fmt.Printf("  %s %s\n", LabelStyle.Render("Duration:"), elapsed.String())
	fmt.Println()
	fmt.Println(DimStyle.Render("Goodbye!"))
}
