package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/mailsense/internal/genai"
	"github.com/teemow/mailsense/internal/workflow"
)

func newFetchCmd() *cobra.Command {
	var req workflow.HistoryRequest

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch your sent mail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.workflow.FetchHistory(ctx, userID, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d sent emails (%s).\n", res.Count, res.Query)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.After, "after", workflow.DefaultHistoryAfter, "Only mail sent after this date (YYYY/MM/DD)")
	cmd.Flags().StringVar(&req.Before, "before", workflow.DefaultHistoryBefore, "Only mail sent before this date (YYYY/MM/DD)")
	cmd.Flags().Int64Var(&req.MaxMessages, "max", workflow.DefaultMaxMessages, "Maximum number of messages to fetch")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Keep the fetched mail written in your own voice",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.workflow.AnalyzeStyle(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Kept %d of %d emails across %d chunks.\n", res.Kept, res.Input, res.Chunks)
				return nil
			})
		},
	}
}

func newGenerateCmd() *cobra.Command {
	var req genai.GenerateRequest

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Write new text in your style",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				req.Prompt = strings.Join(args, " ")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				text, err := a.workflow.Generate(ctx, userID, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Genre, "genre", "", "Kind of text (default: email)")
	cmd.Flags().StringVar(&req.Topic, "topic", "", "What the text is about")
	cmd.Flags().StringVar(&req.Tone, "tone", "", "Tone of the text (default: professional)")
	cmd.Flags().StringVar(&req.Recipient, "recipient", "", "Who the text is addressed to (default: a colleague)")
	cmd.Flags().IntVar(&req.Length, "length", genai.DefaultLength, "Approximate length in words")
	return cmd
}

func newRefineCmd() *cobra.Command {
	var req genai.RefineRequest

	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Revise text without leaving your style",
		Long:  "Revise text according to --instruction. The text is read from --text or, when omitted, from standard input.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read text: %w", err)
				}
				req.Text = string(data)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				text, err := a.workflow.Refine(ctx, userID, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Text, "text", "", "The text to revise (default: standard input)")
	cmd.Flags().StringVar(&req.Instruction, "instruction", "", "How to revise it, e.g. 'make it shorter'")
	_ = cmd.MarkFlagRequired("instruction")
	return cmd
}
