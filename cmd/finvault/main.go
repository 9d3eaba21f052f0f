package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/finvault/internal/bootstrap"
	"github.com/kirillkom/finvault/internal/config"
	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/observability/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type cliState struct {
	verbose bool
	cfg     config.Config
	logger  *slog.Logger
}

type retrievalFlags struct {
	tickers             []string
	companies           []string
	years               []int
	docTypes            []string
	mode                string
	checkContradictions bool
	asJSON              bool
}

func (f *retrievalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.tickers, "ticker", "t", nil, "Restrict to ticker symbols")
	cmd.Flags().StringSliceVar(&f.companies, "company", nil, "Restrict numeric retrieval to company names")
	cmd.Flags().IntSliceVarP(&f.years, "year", "y", nil, "Restrict to fiscal years")
	cmd.Flags().StringSliceVar(&f.docTypes, "doc-type", nil, "Restrict narrative retrieval to document types")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "Force retrieval mode: numeric, narrative or hybrid")
	cmd.Flags().BoolVar(&f.checkContradictions, "check-contradictions", false, "Cross-check narrative claims against the numbers")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the full result as JSON")
}

func (f *retrievalFlags) request(args []string) (domain.RetrievalRequest, error) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return domain.RetrievalRequest{}, fmt.Errorf("query is required")
	}
	return domain.RetrievalRequest{
		Query:               query,
		Tickers:             f.tickers,
		Companies:           f.companies,
		Years:               f.years,
		DocTypes:            f.docTypes,
		ForceMode:           f.mode,
		IncludeContext:      true,
		CheckContradictions: f.checkContradictions,
	}, nil
}

func newRootCmd() *cobra.Command {
	state := &cliState{}

	root := &cobra.Command{
		Use:          "finvault",
		Short:        "Hybrid financial retrieval",
		Long:         "finvault answers questions over company fundamentals and filing excerpts.",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			state.cfg = config.Load()
			level := state.cfg.LogLevel
			if state.verbose {
				level = "debug"
			}
			state.logger = logging.NewJSONLoggerTo(cmd.ErrOrStderr(), "cli", level)
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&state.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newClassifyCmd(state))
	root.AddCommand(newRetrieveCmd(state))
	root.AddCommand(newAskCmd(state))
	root.AddCommand(newHistoryCmd(state))
	return root
}

func newClassifyCmd(state *cliState) *cobra.Command {
	var keywordsPath string
	cmd := &cobra.Command{
		Use:   "classify <query>",
		Short: "Print the retrieval mode a query resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg
			if keywordsPath != "" {
				cfg.ClassifierKeywordsPath = keywordsPath
			}
			classifier, err := bootstrap.NewClassifier(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), classifier.Classify(strings.Join(args, " ")))
			return err
		},
	}
	cmd.Flags().StringVar(&keywordsPath, "keywords", "", "YAML keyword table overriding CLASSIFIER_KEYWORDS_PATH")
	return cmd
}

func newRetrieveCmd(state *cliState) *cobra.Command {
	flags := &retrievalFlags{}
	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Retrieve and print the hybrid context for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(args)
			if err != nil {
				return err
			}
			app, err := bootstrap.New(cmd.Context(), state.cfg, state.logger, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			result := app.Retrieval.Run(cmd.Context(), req)
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.CitationText)
			if result.Contradiction != nil {
				fmt.Fprintf(out, "\nConsistency check: %s\n%s\n", result.Contradiction.Kind, result.Contradiction.Raw)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newAskCmd(state *cliState) *cobra.Command {
	flags := &retrievalFlags{}
	var (
		depth  string
		userID string
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a research question from retrieved evidence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(args)
			if err != nil {
				return err
			}
			app, err := bootstrap.New(cmd.Context(), state.cfg, state.logger, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Research.Ask(cmd.Context(), domain.ResearchRequest{
				UserID:    userID,
				Depth:     domain.ResearchDepth(strings.ToLower(depth)),
				Retrieval: req,
			})
			if err != nil {
				return err
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Answer)
			fmt.Fprintf(out, "\n[model=%s degraded=%t mode=%s latency=%dms]\n",
				result.Model, result.Degraded, result.Context.Mode, result.TotalLatencyMs)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&depth, "depth", "d", string(domain.DepthQuick), "Reasoning depth: quick or deep")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id recorded in query history")
	return cmd
}

func newHistoryCmd(state *cliState) *cobra.Command {
	var (
		userID string
		limit  int
		purge  bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or clear recent research runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if purge && strings.TrimSpace(userID) == "" {
				return fmt.Errorf("--clear requires --user")
			}
			app, err := bootstrap.New(cmd.Context(), state.cfg, state.logger, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			if purge {
				deleted, err := app.History.Clear(cmd.Context(), userID)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d runs\n", deleted)
				return err
			}
			records, err := app.History.Recent(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Only runs of this user")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	cmd.Flags().BoolVar(&purge, "clear", false, "Delete every run of --user instead of listing")
	return cmd
}

func printJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
