package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/repository/mongostore"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/repository/sqldb"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/app"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/config"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
)

var rootCmd = &cobra.Command{
	Use:           "factctl",
	Short:         "Operate the fact collector store",
	Long:          `Run ingestion once, inspect the ranked fact list, and move facts between stores.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch one batch from the fact source and persist it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			report, err := a.Ingestion.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: fetched=%d inserted=%d incremented=%d rejected=%d in %s\n",
				report.Outcome, report.Fetched, report.Inserted, report.Incremented, report.Rejected, report.Duration())
			return nil
		})
	},
}

var (
	listOrder string
	listDesc  bool
	listPage  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := domain.ParseSortKey(listOrder)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			page, err := a.Facts.List(ctx, key, listDesc, listPage)
			if err != nil {
				return err
			}
			return encode(cmd, page)
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every stored fact as JSON to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			facts, err := a.Repo.Dump(ctx)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			return encode(cmd, facts)
		})
	},
}

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load facts from a JSON export, skipping texts already stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(importFile)
		if err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
		defer file.Close()

		var facts []domain.Fact
		if err := json.NewDecoder(file).Decode(&facts); err != nil {
			return fmt.Errorf("decode failed: %w", err)
		}

		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			n, err := a.Repo.Import(ctx, facts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d facts\n", n, len(facts))
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the store schema up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		// opening the store applies pending migrations
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			switch repo := a.Repo.(type) {
			case *sqldb.Repository:
				v, err := repo.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", repo.Dialect(), v)
			case *mongostore.Repository:
				if err := repo.EnsureIndexes(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "mongodb indexes ensured")
			}
			return nil
		})
	},
}

func init() {
	listCmd.Flags().StringVar(&listOrder, "order", "", "sort key name or ordinal (default Alphabetical)")
	listCmd.Flags().BoolVar(&listDesc, "desc", false, "sort descending")
	listCmd.Flags().IntVar(&listPage, "page", 0, "zero-based page index")

	importCmd.Flags().StringVar(&importFile, "file", "", "JSON file to import")
	_ = importCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(ingestCmd, listCmd, exportCmd, importCmd, migrateCmd)
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func encode(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "factctl: %s\n", err)
		os.Exit(1)
	}
}
