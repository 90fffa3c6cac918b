// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models_cmd.go - Model listing for gemrun.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/gemrun/internal/config"
	"github.com/jeranaias/gemrun/internal/gemini"
	"github.com/jeranaias/gemrun/internal/util"
)

// HandleModelsCommand lists the models the API publishes.
func HandleModelsCommand(args Args) error {
	cfg := config.Global()

	client := gemini.NewClient(cfg.API.Key).
		WithTimeout(time.Duration(cfg.API.TimeoutSecs) * time.Second)
	if cfg.API.BaseURL != "" {
		client.WithBaseURL(cfg.API.BaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	models, err := client.ListModels(ctx)
	if err != nil {
		return NewCommandError("models", "list", "could not fetch model list", err)
	}

	current := cfg.API.Model
	if args.Model != "" {
		current = args.Model
	}

	fmt.Println()
	fmt.Println(SectionStyle.Render("Available Models"))
	fmt.Println(RenderSeparator(25))
	fmt.Println()

	for _, m := range models {
		// The API returns fully qualified names like "models/gemini-2.0-flash".
		name := strings.TrimPrefix(m.Name, "models/")
		marker := "  "
		nameStyle := ValueStyle
		if name == current {
			marker = CommandStyle.Render("* ")
			nameStyle = ModelStyle
		}
		fmt.Printf("%s%s\n", marker, nameStyle.Render(name))
		if m.DisplayName != "" && m.DisplayName != name {
			fmt.Printf("    %s\n", DimStyle.Render(m.DisplayName))
		}
		if m.InputTokenLimit > 0 {
			fmt.Printf("    %s\n", DimStyle.Render(fmt.Sprintf(
				"context: %s in / %s out",
				util.FormatCount(m.InputTokenLimit),
				util.FormatCount(m.OutputTokenLimit))))
		}
	}

	fmt.Println()
	fmt.Printf("%s %s\n", LabelStyle.Render("Current:"), ModelStyle.Render(current))
	return nil
}
