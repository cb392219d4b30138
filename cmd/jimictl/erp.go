package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nerrad567/jimi-tracker/internal/erpnext"
	"github.com/nerrad567/jimi-tracker/internal/store"
)

// erpFlags override the ERP section of the loaded config.
type erpFlags struct {
	url    string
	key    string
	secret string
}

func (f *erpFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "ERPNext base URL (default from config or ERP_URL)")
	cmd.Flags().StringVar(&f.key, "key", "", "API key (default from config or ERP_API_KEY)")
	cmd.Flags().StringVar(&f.secret, "secret", "", "API secret (default from config or ERP_API_SECRET)")
}

// client builds an ERPNext client from config with flag overrides applied.
func (f *erpFlags) client(g *globalFlags) (*erpnext.Client, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	erpCfg := cfg.ERP
	if f.url != "" {
		erpCfg.URL = f.url
	}
	if f.key != "" {
		erpCfg.APIKey = f.key
	}
	if f.secret != "" {
		erpCfg.APISecret = f.secret
	}

	c, err := erpnext.NewClient(erpCfg)
	if errors.Is(err, erpnext.ErrNotConfigured) {
		return nil, fmt.Errorf("no ERPNext URL: pass --url or set ERP_URL: %w", err)
	}
	return c, err
}

func newERPTestCmd(g *globalFlags) *cobra.Command {
	var (
		flags erpFlags
		rec   erpnext.Telemetry
	)

	cmd := &cobra.Command{
		Use:   "erp-test",
		Short: "Send one Vehicle Telemetry record to ERPNext",
		Example: `  jimictl erp-test --url https://erp.example.com --key KEY --secret SECRET
  ERP_URL=https://erp.example.com jimictl erp-test --imei JIMI123 --speed 65`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := flags.client(g)
			if err != nil {
				return err
			}
			log := g.logger(cmd)

			if err := client.SendTelemetry(cmd.Context(), rec); err != nil {
				return fmt.Errorf("sending telemetry: %w", err)
			}
			log.Info("telemetry accepted", "url", client.BaseURL(), "imei", rec.IMEI)
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	flags.register(cmd)
	f := cmd.Flags()
	f.StringVar(&rec.IMEI, "imei", "JIMI123", "device IMEI")
	f.Float64Var(&rec.Latitude, "lat", -1.2921, "latitude")
	f.Float64Var(&rec.Longitude, "lon", 36.8219, "longitude")
	f.Float64Var(&rec.Speed, "speed", 65, "speed in km/h")
	f.BoolVar(&rec.Ignition, "ignition", true, "ignition on")

	return cmd
}

func newERPBulkCmd(g *globalFlags) *cobra.Command {
	var (
		flags     erpFlags
		storePath string
	)

	cmd := &cobra.Command{
		Use:   "erp-bulk",
		Short: "Upload every logged point in a storage.json image to ERPNext",
		Long: `erp-bulk reads the tracker's JSON store image and sends each logged point
as a Vehicle Telemetry record, oldest first per device. Failed records are
listed and the upload carries on.`,
		Example: `  jimictl erp-bulk --store storage.json --url https://erp.example.com`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := flags.client(g)
			if err != nil {
				return err
			}
			if storePath == "" {
				cfg, err := g.loadConfig()
				if err != nil {
					return err
				}
				storePath = cfg.Storage.Path
			}
			return runERPBulk(cmd.Context(), client, storePath, cmd.OutOrStdout())
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&storePath, "store", "", "store image (default storage.path from config)")

	return cmd
}

// runERPBulk uploads the image at path and writes a summary to out. It fails
// when any record could not be sent.
func runERPBulk(ctx context.Context, client *erpnext.Client, path string, out io.Writer) error {
	img, err := store.NewFileBackend(path).Load(ctx)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	records := bulkRecords(img)
	res := client.BulkUpload(ctx, records)

	fmt.Fprintf(out, "sent %d of %d records\n", res.Sent, len(records))
	for _, f := range res.Failed {
		fmt.Fprintf(out, "  #%d %s: %v\n", f.Index, f.IMEI, f.Err)
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d records failed", len(res.Failed))
	}
	return nil
}

// bulkRecords flattens an image's logs, devices in sorted order and each
// device's points oldest first.
func bulkRecords(img *store.Image) []erpnext.Telemetry {
	ids := make([]string, 0, len(img.Logs))
	for id := range img.Logs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var records []erpnext.Telemetry
	for _, id := range ids {
		log := img.Logs[id]
		for i := len(log) - 1; i >= 0; i-- {
			records = append(records, erpnext.TelemetryFromPoint(log[i]))
		}
	}
	return records
}
