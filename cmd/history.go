package cmd

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/veloxpay/guestpay/internal/config"
	"github.com/veloxpay/guestpay/internal/observability"
	"github.com/veloxpay/guestpay/internal/store"
)

// newHistoryCmd creates the `history` command, which lists persisted runs.
func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Lists recorded payment runs for a provider",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("run history requires a database URL (hint: set GUESTPAY_DATABASE_URL)")
			}

			pool, err := pgxpool.New(ctx, cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to create database connection pool: %w", err)
			}
			defer pool.Close()

			s, err := store.New(ctx, pool, logger)
			if err != nil {
				return err
			}

			if runID := viper.GetString("run"); runID != "" {
				actions, err := s.GetRunActions(ctx, runID)
				if err != nil {
					return err
				}
				if len(actions) == 0 {
					fmt.Printf("No recorded actions for run %s\n", runID)
					return nil
				}
				for _, a := range actions {
					status := "ok"
					if !a.Succeeded {
						status = "FAILED"
					}
					fmt.Printf("%3d [%s] %-8s %-30s %s\n", a.Iteration, status, a.Action.Type, a.Action.Target, a.Detail)
				}
				return nil
			}

			provider := viper.GetString("provider")
			if provider == "" {
				return fmt.Errorf("--provider is required when not querying a specific run")
			}

			records, err := s.GetRunsByProvider(ctx, provider, viper.GetInt("limit"))
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Printf("No recorded runs for %q\n", provider)
				return nil
			}

			for _, rec := range records {
				outcome := "failed"
				switch {
				case rec.Result.PausedForUser && rec.Result.Success:
					outcome = "paused (ready)"
				case rec.Result.PausedForUser:
					outcome = "paused (incomplete)"
				case rec.Result.Error != "":
					outcome = "error: " + rec.Result.Error
				}
				fmt.Printf("%s  %s  %-20s acct %s  %2d iters  %s\n",
					rec.ID, rec.CreatedAt.Format("2006-01-02 15:04"), outcome,
					rec.AccountLast4, rec.Result.Iterations, rec.Goal)
			}
			return nil
		},
	}

	historyCmd.Flags().StringP("provider", "p", "", "Provider name to list runs for")
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	historyCmd.Flags().String("run", "", "Show the action trail for a specific run ID")

	return historyCmd
}
