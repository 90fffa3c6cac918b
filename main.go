// gemrun - Gemini chat for the command line.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"io"
	"log"

	"github.com/jeranaias/gemrun/internal/cli"
	"github.com/jeranaias/gemrun/internal/gemini"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
	gemini.SetUserAgentVersion(Version)
}

func main() {
	cmd, args := cli.Parse()

	// Request/response log lines are opt-in. They never include the key.
	if !args.Verbose {
		log.SetOutput(io.Discard)
	}

	switch cmd {
	case cli.CmdChat:
		if err := cli.HandleChatCommand(args); err != nil {
			cli.HandleErrorAndExit(err)
		}
	case cli.CmdAsk:
		if err := cli.HandleAskCommand(args); err != nil {
			cli.HandleErrorAndExit(err)
		}
	case cli.CmdHistory:
		if err := cli.HandleHistoryCommand(args); err != nil {
			cli.HandleErrorAndExit(err)
		}
	case cli.CmdModels:
		if err := cli.HandleModelsCommand(args); err != nil {
			cli.HandleErrorAndExit(err)
		}
	case cli.CmdConfig:
		if err := cli.HandleConfigCommand(args); err != nil {
			cli.HandleErrorAndExit(err)
		}
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	}
}
