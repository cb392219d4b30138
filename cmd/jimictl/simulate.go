package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type simulateOptions struct {
	endpoint    string
	imeis       []string
	count       int
	interval    time.Duration
	concurrency int
	seed        uint64
}

// simulateSummary counts what the tracker answered across all devices.
type simulateSummary struct {
	Sent     int64
	Accepted int64
	Rejected int64
}

func newSimulateCmd(g *globalFlags) *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Push random points for one or more devices",
		Example: `  jimictl simulate
  jimictl simulate --imei 862798051215438 --imei 862798051215439 --count 20 --interval 500ms
  jimictl simulate --endpoint https://tracker.example.com/jimi/push --concurrency 8`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := g.logger(cmd)
			log.Info("simulating pushes",
				"endpoint", opts.endpoint,
				"devices", len(opts.imeis),
				"count", opts.count,
			)

			sum, err := runSimulate(cmd.Context(), opts, func(imei string, res pushResult) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s\n", imei, res.Status, res.Body)
			})
			log.Info("simulation finished",
				"sent", sum.Sent,
				"accepted", sum.Accepted,
				"rejected", sum.Rejected,
			)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.endpoint, "endpoint", defaultEndpoint, "tracker push URL")
	f.StringSliceVar(&opts.imeis, "imei", []string{"862798051215438"}, "device IMEI (repeatable)")
	f.IntVarP(&opts.count, "count", "n", 5, "points per device")
	f.DurationVar(&opts.interval, "interval", time.Second, "pause between a device's points")
	f.IntVar(&opts.concurrency, "concurrency", 4, "devices pushing at once")
	f.Uint64Var(&opts.seed, "seed", 0, "random seed (0 picks one)")

	return cmd
}

// runSimulate pushes opts.count points per device. Devices run in parallel
// up to opts.concurrency; each device's points go out in order. The first
// transport error stops the run.
func runSimulate(ctx context.Context, opts simulateOptions, report func(imei string, res pushResult)) (simulateSummary, error) {
	if opts.count < 1 {
		return simulateSummary{}, fmt.Errorf("--count must be at least 1")
	}
	if len(opts.imeis) == 0 {
		return simulateSummary{}, fmt.Errorf("at least one --imei is required")
	}
	seed := opts.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	p := newPusher(opts.endpoint)
	var sent, accepted, rejected atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	if opts.concurrency > 0 {
		g.SetLimit(opts.concurrency)
	}

	for i, imei := range opts.imeis {
		rng := rand.New(rand.NewPCG(seed, uint64(i)))
		g.Go(func() error {
			for n := 0; n < opts.count; n++ {
				if n > 0 && opts.interval > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(opts.interval):
					}
				}

				res, err := p.push(ctx, simulatedPayload(rng, imei))
				if err != nil {
					return fmt.Errorf("device %s: %w", imei, err)
				}
				sent.Add(1)
				if res.Status == http.StatusOK {
					accepted.Add(1)
				} else {
					rejected.Add(1)
				}
				if report != nil {
					report(imei, res)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return simulateSummary{
		Sent:     sent.Load(),
		Accepted: accepted.Load(),
		Rejected: rejected.Load(),
	}, err
}
