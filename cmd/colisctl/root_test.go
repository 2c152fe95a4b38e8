package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/BearBump/ColisTrack/config"
	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/BearBump/ColisTrack/internal/services/colis"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeColis struct {
	byID    map[string]*models.Colis
	created []colis.CreateInput
}

func (f *fakeColis) Create(ctx context.Context, in colis.CreateInput) (*models.Colis, error) {
	f.created = append(f.created, in)
	id := in.ID
	if id == "" {
		id = "COL-1"
	}
	if _, ok := f.byID[id]; ok {
		return nil, errors.Wrapf(colis.ErrConflict, "identifier %q", id)
	}
	c := &models.Colis{ID: id, Reference: "REF-1", Description: in.Description, Status: models.ColisStatusPending}
	f.byID[id] = c
	return c, nil
}

func (f *fakeColis) Resolve(ctx context.Context, identifier string) (*models.Colis, error) {
	for _, c := range f.byID {
		if c.ID == identifier || c.Reference == identifier {
			return c, nil
		}
	}
	return nil, colis.ErrNotFound
}

func (f *fakeColis) Delete(ctx context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return colis.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeColis) RegenerateBarcode(ctx context.Context, id string) (string, error) {
	if _, ok := f.byID[id]; !ok {
		return "", colis.ErrNotFound
	}
	return filepath.Join("static", "barcodes", id+".png"), nil
}

type fakeRetainer struct {
	days []int
}

func (f *fakeRetainer) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	f.days = append(f.days, days)
	return 3, nil
}

type harness struct {
	colis   *fakeColis
	history *fakeRetainer
	opened  int
	closed  int
	cfgSeen *config.Config
	config  string
}

func newHarness(t *testing.T, yaml string) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return &harness{
		colis:   &fakeColis{byID: map[string]*models.Colis{}},
		history: &fakeRetainer{},
		config:  path,
	}
}

func (h *harness) run(args ...string) (string, error) {
	open := func(ctx context.Context, cfg *config.Config) (*admin, func(), error) {
		h.opened++
		h.cfgSeen = cfg
		return &admin{colis: h.colis, history: h.history}, func() { h.closed++ }, nil
	}
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestColisCreateShowDelete(t *testing.T) {
	h := newHarness(t, "retention:\n  history_days: 45\n")

	out, err := h.run("colis", "create", "--description", "Livre", "--id", "C-42")
	require.NoError(t, err)
	var created models.Colis
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.Equal(t, "C-42", created.ID)
	require.Equal(t, "Livre", h.colis.created[0].Description)

	_, err = h.run("colis", "create", "--description", "Livre", "--id", "C-42")
	require.ErrorIs(t, err, colis.ErrConflict)

	out, err = h.run("colis", "show", "REF-1")
	require.NoError(t, err)
	require.Contains(t, out, `"id": "C-42"`)

	out, err = h.run("colis", "delete", "C-42")
	require.NoError(t, err)
	require.Equal(t, "deleted C-42\n", out)

	_, err = h.run("colis", "show", "C-42")
	require.ErrorIs(t, err, colis.ErrNotFound)

	require.Equal(t, h.opened, h.closed)
}

func TestColisCreateRequiresDescription(t *testing.T) {
	h := newHarness(t, "{}\n")
	_, err := h.run("colis", "create")
	require.Error(t, err)
	require.Zero(t, h.opened)
}

func TestBarcodeRegenerate(t *testing.T) {
	h := newHarness(t, "{}\n")
	h.colis.byID["C-1"] = &models.Colis{ID: "C-1"}

	out, err := h.run("barcode", "regenerate", "C-1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("static", "barcodes", "C-1.png")+"\n", out)

	_, err = h.run("barcode", "regenerate", "missing")
	require.ErrorIs(t, err, colis.ErrNotFound)
}

func TestHistoryPurgeDays(t *testing.T) {
	h := newHarness(t, "retention:\n  history_days: 45\n")

	out, err := h.run("history", "purge")
	require.NoError(t, err)
	require.Equal(t, "deleted 3 entries older than 45 days\n", out)

	_, err = h.run("history", "purge", "--days", "7")
	require.NoError(t, err)
	require.Equal(t, []int{45, 7}, h.history.days)

	_, err = h.run("history", "purge", "--days", "0")
	require.Error(t, err)
	require.Len(t, h.history.days, 2)
}

func TestHistoryPurgeDefaultsAndDisabled(t *testing.T) {
	h := newHarness(t, "{}\n")
	_, err := h.run("history", "purge")
	require.NoError(t, err)
	require.Equal(t, []int{90}, h.history.days)
	require.Equal(t, "static/barcodes", filepath.ToSlash(h.cfgSeen.Storage.BarcodeDir))

	disabled := newHarness(t, "retention:\n  history_days: -1\n")
	_, err = disabled.run("history", "purge")
	require.Error(t, err)
	require.Zero(t, disabled.opened)
}

func TestMissingConfig(t *testing.T) {
	t.Setenv("configPath", "")
	cmd := newRootCmd(func(ctx context.Context, cfg *config.Config) (*admin, func(), error) {
		t.Fatal("opener must not be called")
		return nil, nil, nil
	})
	cmd.SetArgs([]string{"colis", "show", "x"})
	require.Error(t, cmd.Execute())
}
