// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Saved conversation management for gemrun.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/gemrun/internal/config"
	"github.com/jeranaias/gemrun/internal/model"
	"github.com/jeranaias/gemrun/internal/storage"
	"github.com/jeranaias/gemrun/internal/util"
)

// HandleHistoryCommand dispatches history subcommands.
func HandleHistoryCommand(args Args) error {
	store, err := openStore()
	if err != nil {
		return NewCommandError("history", args.Subcommand, "could not open conversation store", err)
	}

	switch args.Subcommand {
	case "list", "ls", "l", "":
		return historyList(store)
	case "show", "view":
		return historyShow(store, args.Query)
	case "export":
		return historyExport(store, args.Query)
	case "search", "find":
		return historySearch(store, args.Query)
	case "delete", "rm":
		return historyDelete(store, args.Query)
	case "clear":
		return historyClear(store)
	default:
		return NewValidationError("subcommand", args.Subcommand,
			"must be one of: list, show, export, search, delete, clear")
	}
}

// openStore opens the conversation store with the configured retention.
func openStore() (*storage.ConversationStore, error) {
	store, err := storage.NewConversationStore()
	if err != nil {
		return nil, err
	}
	if max := config.Global().History.MaxConversations; max > 0 {
		store.MaxConversations = max
	}
	return store, nil
}

// resolveConversation accepts a conversation ID or a 1-based list index.
func resolveConversation(store *storage.ConversationStore, ref string) (*storage.StoredConversation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrMissingArgument("conversation", "gemrun history show 1")
	}
	if index, err := strconv.Atoi(ref); err == nil {
		conv, err := store.LoadByIndex(index - 1)
		if err != nil {
			return nil, ErrNotFound("conversation", ref)
		}
		return conv, nil
	}
	conv, err := store.Load(ref)
	if err != nil {
		return nil, ErrNotFound("conversation", ref)
	}
	return conv, nil
}

func historyList(store *storage.ConversationStore) error {
	metas, err := store.List()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println(DimStyle.Render("No saved conversations."))
		return nil
	}

	fmt.Println()
	fmt.Println(SectionStyle.Render("Saved Conversations"))
	fmt.Println(RenderSeparator(25))
	fmt.Println()
	printMetas(metas)
	fmt.Println()
	fmt.Println(DimStyle.Render("Use `gemrun history show <index>` to view one."))
	return nil
}

func printMetas(metas []storage.ConversationMeta) {
	for i, meta := range metas {
		title := meta.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("  %s %s %s\n",
			ValueStyle.Render(fmt.Sprintf("%2d.", i+1)),
			ValueStyle.Render(util.TruncateWidth(title, 50)),
			DimStyle.Render(fmt.Sprintf("(%d messages, %s)",
				meta.MessageCount,
				meta.UpdatedAt.Format("2006-01-02 15:04"))))
	}
}

func historyShow(store *storage.ConversationStore, ref string) error {
	conv, err := resolveConversation(store, ref)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(TitleStyle.Render(conv.Title))
	fmt.Println(RenderSeparator(30))
	fmt.Printf("%s %s\n", LabelStyle.Render("Model:"), ModelStyle.Render(conv.Model))
	fmt.Printf("%s %s\n", LabelStyle.Render("Created:"), conv.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Printf("%s %s\n", LabelStyle.Render("ID:"), DimStyle.Render(conv.ID))
	fmt.Println()

	for _, msg := range conv.Messages {
		role := model.Role(msg.Role)
		style := PromptStyle
		if role == model.RoleModel {
			style = ModelStyle
		}
		fmt.Printf("%s\n%s\n\n", style.Render(role.DisplayName()+":"), msg.Content)
	}
	return nil
}

func historyExport(store *storage.ConversationStore, ref string) error {
	conv, err := resolveConversation(store, ref)
	if err != nil {
		return err
	}
	fmt.Print(conv.ExportMarkdown())
	return nil
}

func historySearch(store *storage.ConversationStore, query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrMissingArgument("search text", "gemrun history search goroutines")
	}
	metas, err := store.Search(query)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println(DimStyle.Render("No matching conversations."))
		return nil
	}
	fmt.Println()
	printMetas(metas)
	fmt.Println()
	return nil
}

func historyDelete(store *storage.ConversationStore, ref string) error {
	conv, err := resolveConversation(store, ref)
	if err != nil {
		return err
	}
	if err := store.Delete(conv.ID); err != nil {
		return err
	}
	fmt.Printf("%s Deleted %q\n", SuccessStyle.Render("[OK]"), conv.Title)
	return nil
}

func historyClear(store *storage.ConversationStore) error {
	metas, err := store.List()
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Printf("%s Deleted %d conversation(s)\n", SuccessStyle.Render("[OK]"), len(metas))
	return nil
}
