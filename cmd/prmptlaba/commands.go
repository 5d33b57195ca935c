package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LazyMisha/prmptlaba/internal/api"
	"github.com/LazyMisha/prmptlaba/internal/config"
	"github.com/LazyMisha/prmptlaba/internal/enhance"
	"github.com/LazyMisha/prmptlaba/internal/library"
	"github.com/LazyMisha/prmptlaba/internal/storage"
)

const listWidth = 80

// --- enhance ---

var enhanceCmd = &cobra.Command{
	Use:   "enhance <prompt>",
	Short: "Enhance a prompt for a target",
	Long: `Enhance a prompt for a target through the running server.

Examples:
  prmptlaba enhance "a cat on a windowsill" --target image-generator
  prmptlaba enhance --target chatgpt --save "plan a weekend in Lisbon"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		save, _ := cmd.Flags().GetBool("save")
		asJSON, _ := cmd.Flags().GetBool("json")

		prompt := strings.TrimSpace(strings.Join(args, " "))
		if prompt == "" {
			return fmt.Errorf("prompt is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/enhance", api.EnhanceRequest{
			Target:      target,
			Prompt:      prompt,
			SaveHistory: save,
		})
		if err != nil {
			return err
		}

		var result api.EnhanceResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if asJSON {
			return printJSON(result)
		}
		fmt.Fprintln(stdout, result.Enhanced)
		if result.HistoryID != "" {
			printSuccess("Saved to history as %s", result.HistoryID)
		}
		return nil
	},
}

func init() {
	enhanceCmd.Flags().StringP("target", "t", enhance.GeneralTarget, "target to enhance for (see 'prmptlaba targets')")
	enhanceCmd.Flags().Bool("save", false, "record the result in history")
	enhanceCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// --- targets ---

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the available enhancement targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/targets")
		if err != nil {
			return err
		}

		var targets []enhance.Target
		if err := decodeJSON(resp, &targets); err != nil {
			return err
		}
		for _, t := range targets {
			fmt.Fprintf(stdout, "%-18s %s\n", colorize(colorBold, t.ID), t.Description)
		}
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse and manage enhancement history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent enhancements, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(offset))
		resp, err := client.get(cmd.Context(), "/api/history?"+q.Encode())
		if err != nil {
			return err
		}

		var entries []storage.HistoryEntry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if asJSON {
			return printJSON(entries)
		}
		if len(entries) == 0 {
			printWarning("No history yet")
			return nil
		}
		for _, e := range entries {
			printRow(e.ID, e.Target, oneLine(e.EnhancedPrompt, listWidth))
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one history entry as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/history/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var entry storage.HistoryEntry
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}
		return printJSON(entry)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one history entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/history/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted history entry %s", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all history",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("this deletes all history; re-run with --confirm")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/history")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("History cleared")
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of entries to list")
	historyListCmd.Flags().Int("offset", 0, "number of entries to skip")
	historyListCmd.Flags().Bool("json", false, "print JSON")
	historyClearCmd.Flags().Bool("confirm", false, "confirm deleting all history")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// --- collections ---

var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"col"},
	Short:   "Manage prompt collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections in display order",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/collections")
		if err != nil {
			return err
		}
		var cols []storage.Collection
		if err := decodeJSON(resp, &cols); err != nil {
			return err
		}
		for _, c := range cols {
			tag := "user"
			if c.IsDefault {
				tag = "default"
			}
			printRow(c.ID, tag, c.Name)
		}
		return nil
	},
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		color, _ := cmd.Flags().GetString("color")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/collections", storage.NewCollection{
			Name:        args[0],
			Description: description,
			Color:       color,
		})
		if err != nil {
			return err
		}
		var col storage.Collection
		if err := decodeJSON(resp, &col); err != nil {
			return err
		}
		printSuccess("Created collection %s (%s)", col.Name, col.ID)
		return nil
	},
}

var collectionsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		name := args[1]
		resp, err := client.patch(cmd.Context(), "/api/collections/"+url.PathEscape(args[0]), storage.CollectionPatch{Name: &name})
		if err != nil {
			return err
		}
		var col storage.Collection
		if err := decodeJSON(resp, &col); err != nil {
			return err
		}
		printSuccess("Renamed collection %s to %s", col.ID, col.Name)
		return nil
	},
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a collection",
	Long: `Delete a collection. A collection that still holds saved prompts is
refused unless --cascade is given, which deletes the prompts too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cascade, _ := cmd.Flags().GetBool("cascade")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/api/collections/" + url.PathEscape(args[0])
		if cascade {
			path += "?cascade=true"
		}
		resp, err := client.delete(cmd.Context(), path)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted collection %s", args[0])
		return nil
	},
}

var collectionsReorderCmd = &cobra.Command{
	Use:   "reorder <id>...",
	Short: "Set the display order of collections",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/api/collections/order", api.ReorderRequest{IDs: args})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Reordered %d collections", len(args))
		return nil
	},
}

func init() {
	collectionsCreateCmd.Flags().String("description", "", "collection description")
	collectionsCreateCmd.Flags().String("color", "", "display color, e.g. #3b82f6")
	collectionsDeleteCmd.Flags().Bool("cascade", false, "also delete the collection's saved prompts")
	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsCreateCmd)
	collectionsCmd.AddCommand(collectionsRenameCmd)
	collectionsCmd.AddCommand(collectionsDeleteCmd)
	collectionsCmd.AddCommand(collectionsReorderCmd)
}

// --- prompts ---

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage saved prompts",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved prompts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")
		target, _ := cmd.Flags().GetString("target")
		asJSON, _ := cmd.Flags().GetBool("json")

		q := url.Values{}
		if collection != "" {
			q.Set("collection_id", collection)
		}
		if target != "" {
			q.Set("target", target)
		}
		path := "/api/prompts"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var prompts []storage.SavedPrompt
		if err := decodeJSON(resp, &prompts); err != nil {
			return err
		}

		if asJSON {
			return printJSON(prompts)
		}
		for _, p := range prompts {
			printRow(p.ID, p.Target, oneLine(p.EnhancedPrompt, listWidth))
		}
		return nil
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one saved prompt as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/prompts/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var p storage.SavedPrompt
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(p)
	},
}

var promptsSaveCmd = &cobra.Command{
	Use:   "save <enhanced prompt>",
	Short: "Save a prompt to the library",
	Long: `Save a prompt to the library. Without --collection it is filed under
the default collection for its target, which is created on first use.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		original, _ := cmd.Flags().GetString("original")
		collection, _ := cmd.Flags().GetString("collection")
		notes, _ := cmd.Flags().GetString("notes")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/prompts", library.SavePromptInput{
			OriginalPrompt: original,
			EnhancedPrompt: strings.Join(args, " "),
			Target:         target,
			CollectionID:   collection,
			Notes:          notes,
		})
		if err != nil {
			return err
		}
		var p storage.SavedPrompt
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		printSuccess("Saved prompt %s in collection %s", p.ID, p.CollectionID)
		return nil
	},
}

var promptsMoveCmd = &cobra.Command{
	Use:   "move <id> <collection-id>",
	Short: "Move a saved prompt to another collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		collection := args[1]
		resp, err := client.patch(cmd.Context(), "/api/prompts/"+url.PathEscape(args[0]), storage.SavedPromptPatch{CollectionID: &collection})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Moved prompt %s to %s", args[0], collection)
		return nil
	},
}

var promptsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/prompts/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted prompt %s", args[0])
		return nil
	},
}

func init() {
	promptsListCmd.Flags().String("collection", "", "only prompts in this collection")
	promptsListCmd.Flags().String("target", "", "only prompts for this target")
	promptsListCmd.Flags().Bool("json", false, "print JSON")
	promptsSaveCmd.Flags().StringP("target", "t", enhance.GeneralTarget, "target the prompt is for")
	promptsSaveCmd.Flags().String("original", "", "the prompt before enhancement")
	promptsSaveCmd.Flags().String("collection", "", "collection id (default: the target's default collection)")
	promptsSaveCmd.Flags().String("notes", "", "free-form notes")
	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsShowCmd)
	promptsCmd.AddCommand(promptsSaveCmd)
	promptsCmd.AddCommand(promptsMoveCmd)
	promptsCmd.AddCommand(promptsDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadSettings()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
