package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/veloxpay/guestpay/api/schemas"
	"github.com/veloxpay/guestpay/internal/agent"
	"github.com/veloxpay/guestpay/internal/config"
	"github.com/veloxpay/guestpay/internal/observability"
	"github.com/veloxpay/guestpay/internal/service"
)

// componentFactory builds the run components. A package variable so tests
// can substitute a fake factory.
var componentFactory service.ComponentFactory = service.NewComponentFactory()

// newPayCmd creates and configures the `pay` command.
func newPayCmd() *cobra.Command {
	payCmd := &cobra.Command{
		Use:   "pay",
		Short: "Drives a provider's guest payment portal up to the final review step",
		Long: `Opens the provider's website, locates the guest payment page, fills in the
bill lookup and bank details, and then stops for manual review. The payment
itself is never submitted automatically.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command-line values override config and env.
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-unmarshal now that flags are bound, so overrides apply
			// with the right precedence.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			cfg.Run = config.RunConfig{
				ProviderURL:       viper.GetString("url"),
				Provider:          viper.GetString("provider"),
				AccountNumber:     viper.GetString("account"),
				ZipCode:           viper.GetString("zip"),
				BillAmount:        viper.GetString("amount"),
				BankAccountNumber: viper.GetString("bank-account"),
				BankRoutingNumber: viper.GetString("bank-routing"),
				Output:            viper.GetString("output"),
			}

			if !strings.HasPrefix(cfg.Run.ProviderURL, "http://") && !strings.HasPrefix(cfg.Run.ProviderURL, "https://") {
				cfg.Run.ProviderURL = "https://" + cfg.Run.ProviderURL
			}

			goalType := schemas.GoalType(viper.GetString("goal"))
			if !goalType.Valid() {
				return fmt.Errorf("invalid goal %q", viper.GetString("goal"))
			}

			goal := schemas.Goal{
				Type: goalType,
				Context: schemas.GoalContext{
					Provider:          cfg.Run.Provider,
					AccountNumber:     cfg.Run.AccountNumber,
					ZipCode:           cfg.Run.ZipCode,
					BillAmount:        cfg.Run.BillAmount,
					BankAccountNumber: cfg.Run.BankAccountNumber,
					BankRoutingNumber: cfg.Run.BankRoutingNumber,
				},
			}

			runID := uuid.New().String()
			logger.Info("Starting payment run",
				zap.String("run_id", runID),
				zap.String("provider", cfg.Run.Provider),
				zap.String("url", cfg.Run.ProviderURL),
				zap.String("goal", string(goal.Type)),
				zap.String("account", agent.MaskSensitive(cfg.Run.AccountNumber)),
			)

			components, err := componentFactory.Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize run components: %w", err)
			}
			defer components.Shutdown()

			// A nil *store.Store must not become a non-nil interface.
			var runStore service.RunStore
			if components.Store != nil {
				runStore = components.Store
			}

			runner := service.NewRunner(components.Agent, runStore, logger, 1)
			outcomes := runner.RunAll(ctx, []service.RunRequest{
				{ID: runID, StartURL: cfg.Run.ProviderURL, Goal: goal},
			})
			result, runErr := outcomes[0].Result, outcomes[0].Err

			if cfg.Run.Output != "" && result != nil {
				if err := writeResultFile(cfg.Run.Output, result); err != nil {
					logger.Warn("Failed to write result file", zap.Error(err))
				}
			}

			if runErr != nil {
				return runErr
			}

			printRunSummary(runID, result)
			return nil
		},
	}

	payCmd.Flags().StringP("url", "u", "", "Provider website or guest payment URL (required)")
	payCmd.Flags().StringP("provider", "p", "", "Provider name, used when searching the site")
	payCmd.Flags().StringP("account", "a", "", "Billing account number (required)")
	payCmd.Flags().StringP("zip", "z", "", "Billing ZIP code (required)")
	payCmd.Flags().String("amount", "", "Bill amount to pay")
	payCmd.Flags().String("bank-account", "", "Bank account number for ACH payment")
	payCmd.Flags().String("bank-routing", "", "Bank routing number for ACH payment")
	payCmd.Flags().StringP("goal", "g", string(schemas.GoalFindGuestPayURL), "Starting goal in the payment flow")
	payCmd.Flags().StringP("output", "o", "", "Write the run result as JSON to this file")

	_ = payCmd.MarkFlagRequired("url")
	_ = payCmd.MarkFlagRequired("account")
	_ = payCmd.MarkFlagRequired("zip")

	return payCmd
}

func writeResultFile(path string, result *schemas.AgentResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run result to %q: %w", path, err)
	}
	return nil
}

func printRunSummary(runID string, result *schemas.AgentResult) {
	fmt.Printf("\nRun %s finished after %d iterations.\n", runID, result.Iterations)
	switch {
	case result.PausedForUser && result.Success:
		fmt.Printf("Paused for you: %s\n", result.PauseReason)
	case result.PausedForUser:
		fmt.Printf("Paused with issues: %s\n", result.PauseReason)
	case result.Error != "":
		fmt.Printf("Stopped: %s\n", result.Error)
	}
	if result.FinalURL != "" {
		fmt.Printf("Final page: %s\n", result.FinalURL)
	}
	if len(result.Screenshots) > 0 {
		fmt.Printf("Screenshots: %s\n", strings.Join(result.Screenshots, ", "))
	}
}
