package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// toolCategory groups tools by name prefix. Categories are listed in the
// order a user walks through them.
type toolCategory struct {
	title    string
	prefixes []string
}

var toolCategories = []toolCategory{
	{title: "Authorization Tools", prefixes: []string{"auth"}},
	{title: "Session Tools", prefixes: []string{"session", "profile", "reminder"}},
	{title: "Writing Style Tools", prefixes: []string{"history", "style", "text"}},
}

const otherCategory = "Other"

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate a Markdown reference of the MCP tools served by mailsense.
The reference is built from the registered tool definitions, so argument
names and descriptions always match what clients see.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(stdout, stderr io.Writer, outputFile string) error {
	mcpSrv := mcpserver.NewMCPServer("mailsense", version,
		mcpserver.WithToolCapabilities(true),
	)

	// Handlers are never invoked here, so no server context is needed.
	if err := registerAllTools(mcpSrv, nil, defaultLocalUser); err != nil {
		return err
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, st := range serverTools {
		tools = append(tools, st.Tool)
	}
	markdown := generateToolsMarkdown(tools)

	if outputFile == "" {
		_, err := io.WriteString(stdout, markdown)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(stderr, "Documentation written to: %s\n", outputFile)
	return nil
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	grouped := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		grouped[category] = append(grouped[category], tool)
	}

	var titles []string
	for _, c := range toolCategories {
		if len(grouped[c.title]) > 0 {
			titles = append(titles, c.title)
		}
	}
	if len(grouped[otherCategory]) > 0 {
		titles = append(titles, otherCategory)
	}

	var sb strings.Builder
	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools available when running mailsense as an MCP server. ")
	sb.WriteString("Generated by `mailsense generate-docs`; do not edit by hand.\n\n")

	for _, title := range titles {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", title, strings.ToLower(strings.ReplaceAll(title, " ", "-")))
	}
	sb.WriteString("\n")

	sb.WriteString("## Sessions\n\n")
	sb.WriteString("Every tool accepts an optional `userId` argument naming the session to act on. ")
	sb.WriteString("Without it, tools act on the user the server was started with (`--user`, default `local`).\n\n")
	sb.WriteString("The writing tools build on each other: `history_fetch` needs an authorized session, ")
	sb.WriteString("`style_analyze` needs fetched history, and `text_generate` and `text_refine` need an analysed style.\n\n")

	for _, title := range titles {
		categoryTools := grouped[title]
		sort.Slice(categoryTools, func(i, j int) bool {
			return categoryTools[i].Name < categoryTools[j].Name
		})

		fmt.Fprintf(&sb, "## %s\n\n", title)
		for _, tool := range categoryTools {
			writeToolMarkdown(&sb, tool)
		}
	}

	return sb.String()
}

func getCategoryFromToolName(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	for _, c := range toolCategories {
		if slices.Contains(c.prefixes, prefix) {
			return c.title
		}
	}
	return otherCategory
}

func writeToolMarkdown(sb *strings.Builder, tool mcp.Tool) {
	fmt.Fprintf(sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		sb.WriteString(tool.Description)
		sb.WriteString("\n\n")
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		return
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	// Required arguments first, then alphabetical.
	sort.Slice(names, func(i, j int) bool {
		ri := slices.Contains(tool.InputSchema.Required, names[i])
		rj := slices.Contains(tool.InputSchema.Required, names[j])
		if ri != rj {
			return ri
		}
		return names[i] < names[j]
	})

	sb.WriteString("**Arguments:**\n")
	for _, name := range names {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		required := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			required = "required"
		}
		propType, _ := prop["type"].(string)
		if propType == "" {
			propType = "any"
		}
		desc, _ := prop["description"].(string)
		if desc == "" {
			desc = propType + " parameter"
		}
		fmt.Fprintf(sb, "- `%s` (%s): %s _(%s)_\n", name, required, desc, propType)
	}
	sb.WriteString("\n")
}
