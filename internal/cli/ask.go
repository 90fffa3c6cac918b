// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command for gemrun.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/gemrun/internal/config"
	"github.com/jeranaias/gemrun/internal/gemini"
	"github.com/jeranaias/gemrun/internal/util"
)

// maxAttachmentSize caps --file attachments. Large files would blow
// the context window before the token pre-check even runs.
const maxAttachmentSize = 1 << 20

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer renders model responses for terminal display.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(DefaultTerminalWidth),
	)
	if err != nil {
		// Fall back to plain text if renderer initialization fails
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown content for terminal display.
// Returns the original content if rendering fails.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayResponse prints a response, rendering markdown only when asked.
// Piped output always gets the raw text.
func displayResponse(response string, markdown bool) {
	if markdown && IsStdoutTTY() {
		fmt.Print(renderMarkdown(response))
	} else {
		fmt.Println(response)
	}
}

// =============================================================================
// ASK COMMAND
// =============================================================================

// HandleAskCommand answers a single question and exits.
func HandleAskCommand(args Args) error {
	if args.Query == "" {
		return ErrMissingArgument("question", `gemrun ask "What is a goroutine?"`)
	}

	cfg := config.Global()
	if args.Model != "" {
		cfg.API.Model = args.Model
	}

	prompt := args.Query
	if args.File != "" {
		attachment, err := readAttachment(args.File)
		if err != nil {
			return err
		}
		prompt = fmt.Sprintf("%s\n\n```\n%s\n```", args.Query, attachment)
	}

	client := gemini.NewClient(cfg.API.Key).
		WithModel(cfg.API.Model).
		WithTimeout(time.Duration(cfg.API.TimeoutSecs) * time.Second).
		WithMaxRetries(cfg.API.MaxRetries).
		WithRetryDelay(time.Duration(cfg.API.RetryDelayMillis) * time.Millisecond)
	if cfg.API.BaseURL != "" {
		client.WithBaseURL(cfg.API.BaseURL)
	}

	// No outer deadline: the HTTP client times out each attempt, and a
	// request-wide deadline shorter than retries x timeout would cut
	// the retry budget off after the first slow attempt.
	ctx := context.Background()

	start := time.Now()
	resp, err := client.Generate(ctx, prompt)
	if err != nil {
		return err
	}

	markdown := cfg.UI.Markdown && !args.NoMarkdown
	displayResponse(resp.Text(), markdown)

	if !args.Quiet {
		fmt.Fprintf(os.Stderr, "%s %s tokens | %s\n",
			DimStyle.Render("[Stats]"),
			util.FormatCount(resp.TotalTokens()),
			time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// readAttachment reads a file for inclusion in the prompt.
func readAttachment(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound("file", path)
		}
		return "", err
	}
	if info.Size() > maxAttachmentSize {
		return "", NewValidationError("file", path,
			fmt.Sprintf("file too large (%d bytes, max %d)", info.Size(), maxAttachmentSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
