package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalmcp/mcp"
	"github.com/petal-labs/petalmcp/tool"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and call the configured tools",
	}

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsCallCmd())

	return cmd
}

func newToolsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tools advertised by tools/list",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
	cmd.Flags().Bool("json", false, "Print the tools/list result as JSON")
	return cmd
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dispatcher, err := buildDispatcher(cfg, newLogger(cmd))
	if err != nil {
		return err
	}
	descriptors := dispatcher.Registry().List()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		result := mcp.ToolsListResult{Tools: make([]mcp.Tool, 0, len(descriptors))}
		for _, desc := range descriptors {
			result.Tools = append(result.Tools, desc.Wire())
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding tool list: %v", err)
		}
		_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tREQUIRED\tDESCRIPTION")
	for _, desc := range descriptors {
		required := strings.Join(desc.InputSchema.Required, ",")
		if required == "" {
			required = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", desc.Name, required, desc.Description)
	}
	return writer.Flush()
}

func newToolsCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Invoke a tool in-process and print its content blocks",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsCall,
	}
	cmd.Flags().StringArray("arg", nil, "Argument KEY=VALUE pair (repeatable)")
	cmd.Flags().String("args", "", "Arguments object as JSON")
	cmd.Flags().Bool("json", false, "Print the content blocks as JSON")
	return cmd
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	arguments, err := parseCallArguments(cmd)
	if err != nil {
		return exitError(exitValidation, "parsing arguments: %v", err)
	}
	dispatcher, err := buildDispatcher(cfg, newLogger(cmd))
	if err != nil {
		return err
	}

	ctx := tool.WithCallInfo(cmd.Context(), tool.CallInfo{SessionID: "cli", Transport: "cli"})
	result := dispatcher.Dispatch(ctx, args[0], arguments)

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(mcp.ToolsCallResult{Content: result.Content, IsError: result.IsError()}, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding call result: %v", err)
		}
		_, _ = out.Write(append(data, '\n'))
	} else {
		printBlocks(out, result.Content)
	}

	if result.IsError() {
		return exitError(exitRuntime, "tool %q failed: %s", args[0], result.Outcome)
	}
	return nil
}

func printBlocks(w io.Writer, blocks []mcp.ContentBlock) {
	for i, block := range blocks {
		if i > 0 {
			fmt.Fprintln(w)
		}
		switch block.Type {
		case mcp.ContentTypeText:
			fmt.Fprintln(w, block.Text)
		case mcp.ContentTypeImage:
			fmt.Fprintf(w, "[image %s, %d base64 bytes]\n", block.MimeType, len(block.Data))
		case mcp.ContentTypeResource:
			if block.Resource == nil {
				continue
			}
			fmt.Fprintf(w, "[resource %s]\n", block.Resource.URI)
			if block.Resource.Text != "" {
				fmt.Fprintln(w, block.Resource.Text)
			}
		}
	}
}

func parseCallArguments(cmd *cobra.Command) (tool.Arguments, error) {
	arguments := tool.Arguments{}

	rawJSON, _ := cmd.Flags().GetString("args")
	if strings.TrimSpace(rawJSON) != "" {
		if err := json.Unmarshal([]byte(rawJSON), &arguments); err != nil {
			return nil, fmt.Errorf("--args: %w", err)
		}
	}

	pairs, _ := cmd.Flags().GetStringArray("arg")
	for _, pair := range pairs {
		key, value, err := parseKeyValue(pair)
		if err != nil {
			return nil, fmt.Errorf("--arg %q: %w", pair, err)
		}
		arguments[key] = parseArgumentValue(value)
	}
	return arguments, nil
}

func parseKeyValue(value string) (string, string, error) {
	key, val, ok := strings.Cut(value, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", errors.New("key is required")
	}
	if !ok {
		return "", "", errors.New("value is required")
	}
	return key, val, nil
}

// parseArgumentValue decodes JSON literals so that numbers, booleans, arrays
// and objects keep their types; anything else is taken as a plain string.
func parseArgumentValue(value string) any {
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "\"") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return value
}
