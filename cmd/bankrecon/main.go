package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/contaflux/bankrecon/internal/config"
	"github.com/contaflux/bankrecon/internal/engine"
	"github.com/contaflux/bankrecon/internal/gateway"
	"github.com/contaflux/bankrecon/internal/ledger"
	"github.com/contaflux/bankrecon/internal/logger"
	"github.com/contaflux/bankrecon/internal/runstore"
	"github.com/contaflux/bankrecon/internal/score"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bankrecon",
		Short: "Automatic bank reconciliation for accounting back offices",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newInitConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	var (
		clientID      string
		period        string
		statementPath string
		ledgerPath    string
		configPath    string
		useOracle     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile a statement CSV against a ledger CSV and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			log := logger.New()
			ctx = logger.WithContext(ctx, log)

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			repo := gateway.NewCSVRepository()
			lines, err := repo.ReadBankLines(statementPath)
			if err != nil {
				return err
			}
			entries, err := repo.ReadLedgerEntries(ledgerPath)
			if err != nil {
				return err
			}

			books := ledger.NewInMemory()
			books.Seed(clientID, period, entries)

			var oracle score.Scorer
			if useOracle {
				gemini, err := score.NewGemini(ctx, cfg.Scorer.Model)
				if err != nil {
					return fmt.Errorf("initializing scoring oracle: %w", err)
				}
				oracle = gemini
			}

			eng := engine.New(cfg, oracle, books, books, runstore.NewInMemory())

			result, err := eng.Reconcile(ctx, engine.Input{
				ClientID:  clientID,
				Period:    period,
				BankLines: lines,
			})
			if err != nil {
				return err
			}

			report, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(report))
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "accounting client ID (required)")
	cmd.Flags().StringVar(&period, "period", "", "accounting period, YYYY-MM (required)")
	cmd.Flags().StringVar(&statementPath, "statement", "", "bank statement CSV path (required)")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "ledger export CSV path (required)")
	cmd.Flags().StringVar(&configPath, "config", "", "bankrecon.yaml path (defaults apply when omitted)")
	cmd.Flags().BoolVar(&useOracle, "oracle", false, "score with the Gemini oracle instead of the local heuristic only")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("period")
	_ = cmd.MarkFlagRequired("statement")
	_ = cmd.MarkFlagRequired("ledger")

	return cmd
}

func newInitConfigCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a bankrecon.yaml with the default parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "bankrecon.yaml", "where to write the config file")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
