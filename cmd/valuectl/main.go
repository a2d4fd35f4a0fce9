// Command valuectl runs maintenance and one-off valuations against the
// configured stores.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"carvalue-api/internal/app"
	"carvalue-api/internal/config"
	"carvalue-api/internal/intake"
	"carvalue-api/internal/logging"
	"carvalue-api/internal/repository"
)

var (
	debug   bool
	timeout time.Duration

	identity  string
	price     int64
	mileage   int64
	condition string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "valuectl",
	Short:         "Operate the listing valuation service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending listing store migrations",
	Long: `Apply pending schema migrations to the SQL listing store selected by
LISTING_DB_TYPE (sqlite, postgres or mysql). MongoDB needs no migrations.`,
	RunE: runMigrate,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <listing-url>",
	Short: "Evaluate one listing and record it",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired intakes and listings past retention",
	RunE:  runSweep,
}

var quotaCmd = &cobra.Command{
	Use:   "quota <identity>",
	Short: "Show the plan and evaluations left today for an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuota,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Operation timeout")

	evaluateCmd.Flags().StringVar(&identity, "identity", "cli", "Identity charged for the evaluation")
	evaluateCmd.Flags().Int64Var(&price, "price", 0, "Asking price")
	evaluateCmd.Flags().Int64Var(&mileage, "mileage", 0, "Mileage in km")
	evaluateCmd.Flags().StringVar(&condition, "condition", "", "Free text condition description")
	_ = evaluateCmd.MarkFlagRequired("price")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(quotaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() (logging.Logger, func()) {
	if !debug {
		return logging.Nop(), func() {}
	}
	l, err := logging.New(true)
	if err != nil {
		return logging.Nop(), func() {}
	}
	return l, func() { _ = l.Sync() }
}

// withApp loads configuration, builds the pipeline and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, sync := newLogger()
	defer sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var db *sql.DB
	switch cfg.ListingDB.Type {
	case repository.DialectSQLite:
		db, err = repository.OpenSQLite(cfg.ListingDB.Path)
	case repository.DialectPostgres:
		db, err = sql.Open("postgres", cfg.ListingDB.PostgresDSN())
	case repository.DialectMySQL:
		db, err = repository.OpenMySQL(ctx, cfg.ListingDB.MySQLDSN())
	default:
		return fmt.Errorf("listing store %q has no SQL migrations", cfg.ListingDB.Type)
	}
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := repository.Migrate(ctx, db, cfg.ListingDB.Type)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s) to %s\n", n, cfg.ListingDB.Type)
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		reply := a.Machine.Submit(ctx, identity, intake.Submission{
			URL:       args[0],
			Price:     price,
			Mileage:   mileage,
			Condition: condition,
		})
		if err := printJSON(cmd.OutOrStdout(), reply); err != nil {
			return err
		}
		if reply.Kind != intake.KindValuation {
			return fmt.Errorf("%s: %s", reply.Kind, reply.Message)
		}
		return nil
	})
}

func runSweep(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Cleanup.RunNow()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}

func runQuota(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		plan, left, err := a.Machine.Remaining(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: plan %s, %d evaluation(s) left today\n", args[0], plan, left)
		return nil
	})
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
