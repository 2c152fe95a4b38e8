package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BearBump/ColisTrack/config"
	"github.com/BearBump/ColisTrack/internal/barcode"
	"github.com/BearBump/ColisTrack/internal/bootstrap"
	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/BearBump/ColisTrack/internal/services/colis"
	"github.com/BearBump/ColisTrack/internal/services/history"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type colisAdmin interface {
	Create(ctx context.Context, in colis.CreateInput) (*models.Colis, error)
	Resolve(ctx context.Context, identifier string) (*models.Colis, error)
	Delete(ctx context.Context, id string) error
	RegenerateBarcode(ctx context.Context, id string) (string, error)
}

type admin struct {
	colis   colisAdmin
	history history.Retainer
}

// opener connects the services a command needs. The returned func releases them.
type opener func(ctx context.Context, cfg *config.Config) (*admin, func(), error)

func openPostgres(ctx context.Context, cfg *config.Config) (*admin, func(), error) {
	st, err := bootstrap.OpenPostgres(ctx, cfg.Database.ConnString(), 10*time.Second)
	if err != nil {
		return nil, nil, err
	}
	return &admin{
		colis:   colis.New(st, barcode.NewGenerator(), barcode.NewImageStore(cfg.Storage.BarcodeDir)),
		history: history.New(st),
	}, st.Close, nil
}

type cli struct {
	open       opener
	configPath string
	cfg        *config.Config
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:           "colisctl",
		Short:         "ColisTrack administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.configPath == "" {
				return errors.New("config path is required (--config or configPath env)")
			}
			cfg, err := config.LoadConfig(c.configPath)
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			bootstrap.ApplyDefaults(cfg)
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("configPath"), "path to the YAML config")

	root.AddCommand(c.colisCmd(), c.barcodeCmd(), c.historyCmd())
	return root
}

// with opens the services for the duration of fn.
func (c *cli) with(cmd *cobra.Command, fn func(ctx context.Context, a *admin) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, closeFn, err := c.open(ctx, c.cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal output")
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
