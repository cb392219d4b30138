package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newPushCmd(_ *globalFlags) *cobra.Command {
	var (
		endpoint string
		imei     string
		lat, lon float64
		speed    float64
		ignition bool
		gpstime  string
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Send one payload to the tracker",
		Example: `  jimictl push --imei JIMI123 --lat -1.2921 --lon 36.8219 --speed 80 --ignition
  jimictl push --imei JIMI123 --lat 0 --lon 0 --gpstime 2026-01-01T08:00:00Z`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := map[string]any{
				"imei":     imei,
				"lat":      lat,
				"lon":      lon,
				"speed":    speed,
				"ignition": ignition,
			}
			if gpstime != "" {
				payload["gpstime"] = gpstime
			}

			res, err := newPusher(endpoint).push(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", res.Status, res.Body)
			if res.Status != http.StatusOK {
				return fmt.Errorf("tracker answered %d", res.Status)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&endpoint, "endpoint", defaultEndpoint, "tracker push URL")
	f.StringVar(&imei, "imei", "JIMI123", "device IMEI")
	f.Float64Var(&lat, "lat", -1.2921, "latitude")
	f.Float64Var(&lon, "lon", 36.8219, "longitude")
	f.Float64Var(&speed, "speed", 80, "speed in km/h")
	f.BoolVar(&ignition, "ignition", false, "ignition on")
	f.StringVar(&gpstime, "gpstime", "", "fix time (ISO-8601); empty lets the tracker stamp it")

	return cmd
}
