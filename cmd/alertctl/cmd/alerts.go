package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/alertcast/internal/alerts"
	"github.com/good-yellow-bee/alertcast/internal/models"
)

var (
	createName  string
	createText  string
	createStyle string
	fieldSet    string
	fieldIncr   int64
	renderPart  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		list := store.List()
		out := cmd.OutOrStdout()
		if output == "json" {
			return writeJSON(out, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No alerts found.")
			return nil
		}

		fmt.Fprintf(out, "%-20s  %-30s  %s\n", "ID", "NAME", "FIELDS")
		fmt.Fprintln(out, strings.Repeat("-", 60))
		for _, a := range list {
			fmt.Fprintf(out, "%-20s  %-30s  %d\n", a.AlertID, a.Name, len(a.Fields))
		}
		fmt.Fprintf(out, "\nTotal: %d alert(s)\n", len(list))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <alert-id>",
	Short: "Show an alert document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		a, ok := store.Get(models.AlertID(args[0]))
		if !ok {
			return fmt.Errorf("alert %s not found", args[0])
		}
		out := cmd.OutOrStdout()
		if output == "json" {
			return writeJSON(out, a)
		}

		fmt.Fprintf(out, "ID:    %s\n", a.AlertID)
		fmt.Fprintf(out, "Name:  %s\n", a.Name)
		fmt.Fprintf(out, "Text:  %s\n", a.LastText)
		fmt.Fprintf(out, "Style: %s\n", a.LastStyle)
		if len(a.Fields) > 0 {
			fmt.Fprintf(out, "\n%-36s  %-20s  %-8s  %s\n", "FIELD ID", "NAME", "KIND", "VALUE")
			for _, f := range a.Fields {
				fmt.Fprintf(out, "%-36s  %-20s  %-8s  %s\n", f.ID, f.Name, f.Value.Kind(), f.Value)
			}
		}
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create [alert-id]",
	Short: "Create an alert",
	Long: `Create an alert. A short random id is generated when none is given.

Text and style accept @path to read a file, or @- for stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := models.NewAlertID()
		if len(args) == 1 {
			parsed, err := models.ParseAlertID(args[0])
			if err != nil {
				return err
			}
			id = parsed
		}
		if err := alerts.ValidateName(createName); err != nil {
			return err
		}
		text, err := readArg(cmd, createText)
		if err != nil {
			return err
		}
		style, err := readArg(cmd, createStyle)
		if err != nil {
			return err
		}

		store, closeFn, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		a := models.NewAlert(id, strings.TrimSpace(createName))
		a.LastText = text
		a.LastStyle = style
		if err := store.Create(cmd.Context(), a); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var renderCmd = &cobra.Command{
	Use:   "render <alert-id>",
	Short: "Print the rendered alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		doc, err := store.Render(models.AlertID(args[0]))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch renderPart {
		case "html":
			fmt.Fprint(out, doc.HTML)
		case "text":
			fmt.Fprintln(out, doc.Text)
		case "style":
			fmt.Fprintln(out, doc.Style)
		default:
			return fmt.Errorf("--part must be html, text or style")
		}
		return nil
	},
}

var setTextCmd = &cobra.Command{
	Use:   "set-text <alert-id> <text|@file|@->",
	Short: "Replace the markdown template of an alert",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readArg(cmd, args[1])
		if err != nil {
			return err
		}
		return withStore(cmd, func(store *alerts.Store) error {
			return store.SetText(cmd.Context(), models.AlertID(args[0]), text)
		})
	},
}

var setStyleCmd = &cobra.Command{
	Use:   "set-style <alert-id> <css|@file|@->",
	Short: "Replace the CSS template of an alert",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		style, err := readArg(cmd, args[1])
		if err != nil {
			return err
		}
		return withStore(cmd, func(store *alerts.Store) error {
			return store.SetStyle(cmd.Context(), models.AlertID(args[0]), style)
		})
	},
}

var addFieldCmd = &cobra.Command{
	Use:   "add-field <alert-id> <name> <text|counter> <value>",
	Short: "Append a field to an alert",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := models.ParseFieldName(args[1])
		if err != nil {
			return err
		}
		kind, err := models.ParseFieldKind(args[2])
		if err != nil {
			return err
		}
		value, err := models.NewFieldValue(kind, args[3])
		if err != nil {
			return err
		}
		return withStore(cmd, func(store *alerts.Store) error {
			id, err := store.AddField(cmd.Context(), models.AlertID(args[0]), name, value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		})
	},
}

var setFieldCmd = &cobra.Command{
	Use:   "set-field <alert-id> <field-name>",
	Short: "Set or increment the first field with the given name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := models.ParseFieldName(args[1])
		if err != nil {
			return err
		}
		var u models.FieldUpdate
		if cmd.Flags().Changed("set") {
			u.Set = &fieldSet
		}
		if cmd.Flags().Changed("incr") {
			u.Incr = &fieldIncr
		}
		if err := u.Validate(); err != nil {
			return fmt.Errorf("give exactly one of --set and --incr: %w", err)
		}
		return withStore(cmd, func(store *alerts.Store) error {
			_, err := store.UpdateFieldByName(cmd.Context(), models.AlertID(args[0]), name, u)
			return err
		})
	},
}

func withStore(cmd *cobra.Command, fn func(*alerts.Store) error) error {
	store, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(store)
}

// readArg resolves @path and @- references.
func readArg(cmd *cobra.Command, v string) (string, error) {
	switch {
	case v == "@-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case strings.HasPrefix(v, "@"):
		data, err := os.ReadFile(v[1:])
		if err != nil {
			return "", fmt.Errorf("read %s: %w", v[1:], err)
		}
		return string(data), nil
	default:
		return v, nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	createCmd.Flags().StringVar(&createName, "name", "", "display name (required)")
	createCmd.Flags().StringVar(&createText, "text", "", "markdown template")
	createCmd.Flags().StringVar(&createStyle, "style", "", "CSS template")
	createCmd.MarkFlagRequired("name")

	renderCmd.Flags().StringVar(&renderPart, "part", "html", "what to print (html, text, style)")

	setFieldCmd.Flags().StringVar(&fieldSet, "set", "", "new value, parsed as the field's kind")
	setFieldCmd.Flags().Int64Var(&fieldIncr, "incr", 0, "amount to add to a counter")

	rootCmd.AddCommand(listCmd, showCmd, createCmd, renderCmd, setTextCmd, setStyleCmd, addFieldCmd, setFieldCmd)
}
