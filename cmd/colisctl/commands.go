package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BearBump/ColisTrack/internal/services/colis"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (c *cli) colisCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "colis", Short: "Manage colis"}

	var description, id string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a colis with generated identifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, func(ctx context.Context, a *admin) error {
				created, err := a.colis.Create(ctx, colis.CreateInput{ID: id, Description: description})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), created)
			})
		},
	}
	create.Flags().StringVar(&description, "description", "", "colis description")
	create.Flags().StringVar(&id, "id", "", "custom colis id")
	_ = create.MarkFlagRequired("description")

	show := &cobra.Command{
		Use:   "show <identifier>",
		Short: "Show a colis by id, reference, tcn or barcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, func(ctx context.Context, a *admin) error {
				found, err := a.colis.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), found)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a colis and its barcode image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, func(ctx context.Context, a *admin) error {
				if err := a.colis.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return err
			})
		},
	}

	cmd.AddCommand(create, show, del)
	return cmd
}

func (c *cli) barcodeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "barcode", Short: "Barcode images"}
	cmd.AddCommand(&cobra.Command{
		Use:   "regenerate <id>",
		Short: "Render the barcode image of a colis again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, func(ctx context.Context, a *admin) error {
				path, err := a.colis.RegenerateBarcode(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
				return err
			})
		},
	})
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "history", Short: "Search history maintenance"}

	var days int
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete history entries older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("days") {
				days = c.cfg.Retention.HistoryDays
			}
			if days <= 0 {
				return errors.Errorf("retention must be a positive number of days, got %d", days)
			}
			return c.with(cmd, func(ctx context.Context, a *admin) error {
				n, err := a.history.DeleteOlderThan(ctx, days)
				if err != nil {
					return err
				}
				slog.Info("history purged", "deleted", n, "days", days)
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries older than %d days\n", n, days)
				return err
			})
		},
	}
	purge.Flags().IntVar(&days, "days", 0, "retention in days (default from config)")

	cmd.AddCommand(purge)
	return cmd
}
