// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for gemrun.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdHistory
	CmdModels
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	NoMarkdown bool
	Model      string

	// Command-specific
	Query      string
	File       string
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `gemrun - Gemini chat for the command line

Gemrun is a small chat client for the Google Gemini API.

It provides:
  - Interactive chat with conversation context
  - One-shot questions with optional file attachment
  - Saved transcripts with search and markdown export
  - Automatic retry on rate limits and transient failures

Usage:
  gemrun                     Start interactive chat (default)
  gemrun chat                Interactive chat
  gemrun ask "question"      Ask a single question
  gemrun history [subcommand] Saved conversation management
  gemrun models              List available models
  gemrun config [show|path|set] Configuration
  gemrun version             Show version
  gemrun help                Show this help

Ask Command:
  gemrun ask "question"             Ask and print the answer
    -f, --file PATH                 Include a file with the question
    -m, --model NAME                Override the model for this question

History Commands:
  gemrun history                    List saved conversations
  gemrun history show <id|index>    Show a conversation
  gemrun history export <id|index>  Export a conversation as Markdown
  gemrun history search <text>      Search titles and previews
  gemrun history delete <id|index>  Delete a conversation
  gemrun history clear              Delete all conversations

Config Commands:
  gemrun config show                Show current configuration
  gemrun config path                Print config file location
  gemrun config set <key> <value>   Set a config value
                                    Keys: api.key, api.model, ui.theme,
                                          ui.markdown, history.enabled

Chat Commands (inside chat):
  /help      Show chat commands
  /clear     Clear conversation history
  /model     Show or switch model
  /status    Show session statistics
  /history   Show conversation so far
  /quit      Exit (also: quit, exit, Ctrl+D)

Global Flags:
  -q, --quiet     Minimal output
  -v, --verbose   Log API requests and responses
  --no-markdown   Disable markdown rendering
  --model NAME    Override default model

Environment:
  GEMINI_API_KEY     API key (preferred over config file)
  GOOGLE_API_KEY     API key fallback
  GEMRUN_MODEL       Override default model
  GEMRUN_CONFIG_DIR  Config directory (default ~/.gemrun)
  NO_COLOR           Disable colored output

Examples:
  gemrun                              Start chatting
  gemrun ask "What is a goroutine?"   One-shot question
  gemrun ask "Review this:" -f x.go   Include a file
  gemrun chat --model gemini-2.0-flash
  gemrun history show 1               Show most recent conversation
  gemrun config set api.key YOUR_KEY

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("gemrun version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses the given arguments. Split out from Parse for tests.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	// No command defaults to interactive chat
	if len(remaining) == 0 {
		return CmdChat, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "chat":
		return CmdChat, parsedArgs

	case "ask":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "history", "conversations":
		parseHistoryArgs(&parsedArgs, remaining)
		return CmdHistory, parsedArgs

	case "models", "model-list":
		return CmdModels, parsedArgs

	case "config":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "version", "-v", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Unknown first token: treat the whole line as an ask query,
		// so `gemrun "what is Go"` works without the ask keyword.
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		parseAskArgs(&parsedArgs, parsedArgs.Raw)
		return CmdAsk, parsedArgs
	}
}

// parseGlobalFlags extracts global flags and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--no-markdown":
			parsedArgs.NoMarkdown = true
		case "--model":
			if i+1 < len(args) {
				i++
				parsedArgs.Model = args[i]
			}
		default:
			if strings.HasPrefix(arg, "--model=") {
				parsedArgs.Model = strings.TrimPrefix(arg, "--model=")
			} else {
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, parsedArgs
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	i := 0
	for i < len(remaining) {
		arg := remaining[i]

		switch arg {
		case "-f", "--file":
			if i+1 < len(remaining) {
				i++
				args.File = remaining[i]
			}
		case "-m", "--model":
			if i+1 < len(remaining) {
				i++
				args.Model = remaining[i]
			}
		default:
			if strings.HasPrefix(arg, "--file=") {
				args.File = strings.TrimPrefix(arg, "--file=")
			} else if strings.HasPrefix(arg, "--model=") {
				args.Model = strings.TrimPrefix(arg, "--model=")
			} else if !strings.HasPrefix(arg, "-") {
				query = append(query, arg)
			}
		}
		i++
	}

	args.Query = strings.Join(query, " ")
}

// parseHistoryArgs parses history command specific arguments.
// The first token is the subcommand, the rest is the query (an ID,
// a list index, or search text).
func parseHistoryArgs(args *Args, remaining []string) {
	if len(remaining) == 0 {
		args.Subcommand = "list"
		return
	}
	args.Subcommand = strings.ToLower(remaining[0])
	if len(remaining) > 1 {
		args.Query = strings.Join(remaining[1:], " ")
	}
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) == 0 {
		args.Subcommand = "show"
		return
	}
	args.Subcommand = strings.ToLower(remaining[0])
	if len(remaining) > 1 {
		args.ConfigKey = remaining[1]
	}
	if len(remaining) > 2 {
		args.ConfigVal = strings.Join(remaining[2:], " ")
	}
}
