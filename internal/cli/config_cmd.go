// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration inspection and editing for gemrun.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/gemrun/internal/config"
	"github.com/jeranaias/gemrun/internal/gemini"
)

// HandleConfigCommand dispatches config subcommands.
func HandleConfigCommand(args Args) error {
	switch args.Subcommand {
	case "show", "":
		return configShow()
	case "path":
		return configPath()
	case "set":
		return configSet(args.ConfigKey, args.ConfigVal)
	default:
		return NewValidationError("subcommand", args.Subcommand,
			"must be one of: show, path, set")
	}
}

func configShow() error {
	cfg := config.Global()

	fmt.Println()
	fmt.Println(SectionStyle.Render("Configuration"))
	fmt.Println(RenderSeparator(20))
	fmt.Println()

	// The key itself is never printed, only a masked form.
	keyDisplay := WarningStyle.Render("not set")
	if cfg.API.Key != "" {
		keyDisplay = DimStyle.Render(gemini.NewClient(cfg.API.Key).APIKeyMasked())
	}

	fmt.Printf("  %s %s\n", LabelStyle.Render("api.key:"), keyDisplay)
	fmt.Printf("  %s %s\n", LabelStyle.Render("api.model:"), ModelStyle.Render(cfg.API.Model))
	if cfg.API.BaseURL != "" {
		fmt.Printf("  %s %s\n", LabelStyle.Render("api.base_url:"), ValueStyle.Render(cfg.API.BaseURL))
	}
	fmt.Printf("  %s %d\n", LabelStyle.Render("api.timeout_secs:"), cfg.API.TimeoutSecs)
	fmt.Printf("  %s %d\n", LabelStyle.Render("api.max_retries:"), cfg.API.MaxRetries)
	fmt.Printf("  %s %d\n", LabelStyle.Render("api.retry_delay_millis:"), cfg.API.RetryDelayMillis)
	fmt.Printf("  %s %t\n", LabelStyle.Render("history.enabled:"), cfg.History.Enabled)
	fmt.Printf("  %s %d\n", LabelStyle.Render("history.max_conversations:"), cfg.History.MaxConversations)
	fmt.Printf("  %s %s\n", LabelStyle.Render("ui.theme:"), ValueStyle.Render(cfg.UI.Theme))
	fmt.Printf("  %s %t\n", LabelStyle.Render("ui.markdown:"), cfg.UI.Markdown)
	fmt.Println()
	return nil
}

func configPath() error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// configSet updates one key and saves the file. The value goes through
// Validate before anything is written.
func configSet(key, value string) error {
	if key == "" {
		return ErrMissingArgument("key", "gemrun config set api.model gemini-2.0-flash")
	}
	if value == "" {
		return ErrMissingArgument("value", "gemrun config set api.model gemini-2.0-flash")
	}

	cfg := config.Global()

	switch strings.ToLower(key) {
	case "api.key":
		cfg.API.Key = value
	case "api.model", "model":
		cfg.API.Model = value
	case "api.base_url":
		cfg.API.BaseURL = value
	case "api.timeout_secs":
		return setIntField(cfg, key, value, func(c *config.Config, n int) { c.API.TimeoutSecs = n })
	case "api.max_retries":
		return setIntField(cfg, key, value, func(c *config.Config, n int) { c.API.MaxRetries = n })
	case "api.retry_delay_millis":
		return setIntField(cfg, key, value, func(c *config.Config, n int) { c.API.RetryDelayMillis = n })
	case "history.enabled":
		return setBoolField(cfg, key, value, func(c *config.Config, b bool) { c.History.Enabled = b })
	case "history.max_conversations":
		return setIntField(cfg, key, value, func(c *config.Config, n int) { c.History.MaxConversations = n })
	case "ui.theme", "theme":
		cfg.UI.Theme = value
	case "ui.markdown":
		return setBoolField(cfg, key, value, func(c *config.Config, b bool) { c.UI.Markdown = b })
	case "ui.show_tokens":
		return setBoolField(cfg, key, value, func(c *config.Config, b bool) { c.UI.ShowTokens = b })
	default:
		return NewValidationError("key", key,
			"unknown config key (see `gemrun help` for the list)")
	}

	return validateAndSave(cfg, key)
}

func setIntField(cfg *config.Config, key, value string, set func(*config.Config, int)) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return NewValidationError(key, value, "must be an integer")
	}
	set(cfg, n)
	return validateAndSave(cfg, key)
}

func setBoolField(cfg *config.Config, key, value string, set func(*config.Config, bool)) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return NewValidationError(key, value, "must be true or false")
	}
	set(cfg, b)
	return validateAndSave(cfg, key)
}

func validateAndSave(cfg *config.Config, key string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return NewCommandError("config", "set", "could not save config", err)
	}
	config.SetGlobal(cfg)
	fmt.Printf("%s Updated %s\n", SuccessStyle.Render("[OK]"), key)
	return nil
}
