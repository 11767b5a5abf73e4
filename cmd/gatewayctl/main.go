package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheSoftNode/StacksPay-sub004/internal/config"
	"github.com/TheSoftNode/StacksPay-sub004/internal/contract"
	"github.com/TheSoftNode/StacksPay-sub004/internal/lifecycle"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/notify"
	"github.com/TheSoftNode/StacksPay-sub004/internal/queue"
	"github.com/TheSoftNode/StacksPay-sub004/internal/store"
	"github.com/TheSoftNode/StacksPay-sub004/internal/validator"
	"github.com/TheSoftNode/StacksPay-sub004/internal/wallet"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "gatewayctl",
		Short:   "Operations CLI for the StacksPay gateway",
		Version: Version,
	}

	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(merchantCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// stores carries read access to the gateway tables
type stores struct {
	payments  *store.DynamoStore
	merchants *store.DynamoMerchantStore
}

func openStores(cfg *config.Config) (*stores, error) {
	payments, err := store.NewDynamoStore(cfg.AWS.Region, cfg.Database.PaymentsTable, cfg.Database.Endpoint)
	if err != nil {
		return nil, err
	}

	merchants, err := store.NewDynamoMerchantStore(cfg.AWS.Region, cfg.Database.MerchantsTable, cfg.Database.Endpoint)
	if err != nil {
		return nil, err
	}

	return &stores{payments: payments, merchants: merchants}, nil
}

// openMachine wires the full lifecycle against the production tables and
// queues. Cancel and sweep emit the same webhooks the Lambdas would.
func openMachine(ctx context.Context, cfg *config.Config) (*lifecycle.Machine, *stores, error) {
	st, err := openStores(cfg)
	if err != nil {
		return nil, nil, err
	}

	q, err := queue.NewClient(cfg.AWS.Region, cfg.Queue.Endpoint)
	if err != nil {
		return nil, nil, err
	}

	masterKey, err := config.GetWalletMasterKey(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, nil, err
	}
	vault, err := wallet.NewVault(masterKey, cfg.Chain.Network)
	if err != nil {
		return nil, nil, err
	}

	// In production, replace with a signing client for the gateway contract
	chain := contract.NewFake()

	machine := lifecycle.NewMachine(lifecycle.Deps{
		Payments:        st.payments,
		Merchants:       st.merchants,
		Contract:        chain,
		Notifier:        notify.NewQueueNotifier(queue.NewWebhookQueue(q, cfg.Queue.WebhookQueueURL)),
		Vault:           vault,
		Settlements:     queue.NewSettlementQueue(q, cfg.Queue.SettlementQueueURL),
		SettlementDelay: time.Duration(cfg.Payments.SettlementDelaySeconds) * time.Second,
		DefaultExpiry:   time.Duration(cfg.Payments.ExpirySeconds) * time.Second,
	})

	return machine, st, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewFromString(cfg.Logging.Level)
	logger.SetDefault(log)

	return cfg, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func paymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Inspect and manage payments",
	}

	cmd.AddCommand(paymentGetCmd())
	cmd.AddCommand(paymentCancelCmd())

	return cmd
}

func paymentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <payment_id>",
		Short: "Print a payment record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := openStores(cfg)
			if err != nil {
				return err
			}

			payment, err := st.payments.GetPaymentByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return printJSON(payment)
		},
	}
}

func paymentCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <payment_id>",
		Short: "Cancel a pending payment on a merchant's behalf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			merchantID, _ := cmd.Flags().GetString("merchant-id")
			if merchantID == "" {
				return fmt.Errorf("--merchant-id is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			machine, _, err := openMachine(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			payment, err := machine.Cancel(cmd.Context(), args[0], merchantID)
			if err != nil {
				return err
			}

			fmt.Printf("Cancelled %s\n", payment.PaymentID)
			return printJSON(payment)
		},
	}

	cmd.Flags().String("merchant-id", "", "Owning merchant (required)")

	return cmd
}

func merchantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merchant",
		Short: "Inspect and seed merchant records",
	}

	cmd.AddCommand(merchantGetCmd())
	cmd.AddCommand(merchantPutCmd())

	return cmd
}

func merchantGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <merchant_id>",
		Short: "Print a merchant record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := openStores(cfg)
			if err != nil {
				return err
			}

			merchant, err := st.merchants.GetMerchant(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return printJSON(merchant)
		},
	}
}

func merchantPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <merchant_id>",
		Short: "Create or overwrite a merchant record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			settlementAddress, _ := cmd.Flags().GetString("settlement-address")
			webhookURL, _ := cmd.Flags().GetString("webhook-url")
			webhookSecret, _ := cmd.Flags().GetString("webhook-secret")
			feeRate, _ := cmd.Flags().GetInt64("fee-rate")

			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if !validator.IsStacksAddress(settlementAddress) {
				return fmt.Errorf("--settlement-address must be a valid Stacks address")
			}
			if feeRate < 0 || feeRate > 100 {
				return fmt.Errorf("--fee-rate must be between 0 and 100")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := openStores(cfg)
			if err != nil {
				return err
			}

			merchant := &models.Merchant{
				MerchantID:        args[0],
				Name:              name,
				SettlementAddress: settlementAddress,
				WebhookURL:        webhookURL,
				WebhookSecret:     webhookSecret,
				FeeRatePercent:    feeRate,
				CreatedAt:         time.Now().UTC(),
			}

			if err := st.merchants.PutMerchant(cmd.Context(), merchant); err != nil {
				return err
			}

			fmt.Printf("Stored merchant %s\n", merchant.MerchantID)
			return nil
		},
	}

	cmd.Flags().String("name", "", "Display name (required)")
	cmd.Flags().String("settlement-address", "", "Stacks address receiving net proceeds (required)")
	cmd.Flags().String("webhook-url", "", "Webhook endpoint for lifecycle events")
	cmd.Flags().String("webhook-secret", "", "HMAC key for webhook signatures")
	cmd.Flags().Int64("fee-rate", 1, "Platform fee rate in whole percent")

	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Settle confirmed payments whose settle_after has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if dryRun {
				st, err := openStores(cfg)
				if err != nil {
					return err
				}

				due, err := st.payments.ListDueSettlements(cmd.Context(), time.Now().UTC(), limit)
				if err != nil {
					return err
				}

				if len(due) == 0 {
					fmt.Println("No settlements due.")
					return nil
				}

				fmt.Printf("%d settlements due:\n", len(due))
				for _, p := range due {
					fmt.Printf("  %s  merchant=%s  received=%d  due=%s\n",
						p.PaymentID, p.MerchantID, p.ReceivedAmount,
						p.SettleAfter.Format(time.RFC3339))
				}
				return nil
			}

			machine, _, err := openMachine(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			settled, err := machine.SweepDueSettlements(cmd.Context(), limit)
			if err != nil {
				return err
			}

			fmt.Printf("Settled %d payments\n", settled)
			return nil
		},
	}

	cmd.Flags().Int("limit", 50, "Maximum payments per sweep")
	cmd.Flags().Bool("dry-run", false, "List due settlements without executing them")

	return cmd
}
