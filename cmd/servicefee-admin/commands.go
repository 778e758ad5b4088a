package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cuongbtq/servicefee/internal/config"
	"github.com/cuongbtq/servicefee/internal/payment/pricing"
	"github.com/cuongbtq/servicefee/internal/payment/reference"
	"github.com/cuongbtq/servicefee/internal/payment/webhook"
	"github.com/cuongbtq/servicefee/migrations"
	"github.com/cuongbtq/servicefee/shared/logger"
	"github.com/cuongbtq/servicefee/shared/postgresql"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			appLogger := logger.NewDefault()
			db, err := postgresql.NewClient(&postgresql.Config{
				Host:            cfg.Database.Host,
				Port:            cfg.Database.Port,
				User:            cfg.Database.User,
				Password:        cfg.Database.Password,
				Database:        cfg.Database.Database,
				SSLMode:         cfg.Database.SSLMode,
				MaxOpenConns:    1,
				MaxIdleConns:    1,
				ConnMaxLifetime: time.Minute,
				ConnMaxIdleTime: time.Minute,
			}, appLogger.Logger)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := migrations.Apply(ctx, db.GetDB()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func quoteCmd() *cobra.Command {
	var boosts []string

	cmd := &cobra.Command{
		Use:   "quote [package-id]",
		Short: "Print the fee breakdown for a package and boosts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			engine, err := pricing.NewEngineFromConfig(&cfg.Pricing)
			if err != nil {
				return err
			}

			breakdown, err := engine.Quote(args[0], boosts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), breakdown)
		},
	}

	cmd.Flags().StringSliceVarP(&boosts, "boost", "b", nil, "Boost ids to add")
	return cmd
}

func qrCmd() *cobra.Command {
	var (
		amount int64
		ref    string
	)

	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Render the PromptPay QR payload for an amount",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			pp, err := reference.NewPromptPay(cfg.PromptPay.MerchantID)
			if err != nil {
				return fmt.Errorf("invalid promptpay merchant: %w", err)
			}

			payload, err := pp.Payload(amount, ref)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload)
			return nil
		},
	}

	cmd.Flags().Int64Var(&amount, "amount", 0, "Amount in whole baht")
	cmd.Flags().StringVar(&ref, "reference", "", "Payment id to embed as the reference label")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func signWebhookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign-webhook [body-file]",
		Short: "Print the signature header for a webhook body, reading stdin when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			v, err := webhook.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.SignatureHeader)
			if err != nil {
				return err
			}

			var body []byte
			if len(args) == 1 {
				body, err = os.ReadFile(args[0])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("failed to read body: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", v.Header(), v.Sign(body))
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
