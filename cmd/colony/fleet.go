package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cuemby/colony/pkg/events"
	"github.com/cuemby/colony/pkg/fleet"
	"github.com/cuemby/colony/pkg/log"
	"github.com/cuemby/colony/pkg/metrics"
	"github.com/cuemby/colony/pkg/reconciler"
	"github.com/cuemby/colony/pkg/types"
	"github.com/spf13/cobra"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Manage the worker fleet",
}

var fleetEnsureCmd = &cobra.Command{
	Use:   "ensure [INDEX]",
	Short: "Ensure one worker slot, or every slot when no index is given",
	Long: `Ensure makes a worker slot converge on one usable instance.

A running instance is left alone, a stopped one is started and a missing or
terminated one is replaced by a freshly provisioned instance tagged worker<n>.
Instances that are mid-transition are reported and left untouched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, appOptions{slots: true})
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid slot index %q", args[0])
			}
			if err := a.ctrl.EnsureWorker(ctx, index); err != nil {
				return err
			}
			slot, _ := a.ctrl.Slot(index)
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s ensured (%s)\n", slot.Name(), slot.InstanceID)
			return nil
		}

		reports := a.ctrl.EnsureFleet(ctx)
		printReports(cmd.OutOrStdout(), reports)
		for _, r := range reports {
			if !r.OK() {
				return fmt.Errorf("one or more slots failed")
			}
		}
		return nil
	},
}

var fleetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded instance of every worker slot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, appOptions{slots: true})
		if err != nil {
			return err
		}
		defer a.Close()

		printSlots(cmd.OutOrStdout(), a.ctrl.Slots())
		return nil
	},
}

var fleetWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the fleet converged until interrupted",
	Long: `Watch ensures every worker slot on a fixed interval and serves
Prometheus metrics and health endpoints until interrupted.`,
	RunE: runWatch,
}

func init() {
	fleetCmd.AddCommand(fleetEnsureCmd)
	fleetCmd.AddCommand(fleetStatusCmd)
	fleetCmd.AddCommand(fleetWatchCmd)

	fleetWatchCmd.Flags().Duration("interval", 0, "Reconciliation interval (default from config)")
	fleetWatchCmd.Flags().String("metrics-addr", "", "Metrics listen address (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{slots: true})
	if err != nil {
		return err
	}
	defer a.Close()

	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = time.Duration(cfg.Fleet.WatchInterval)
	}
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		addr = cfg.Metrics.Addr
	}

	err = a.queues.CreateAll(ctx)
	metrics.ReportComponent(metrics.ComponentQueue, err)
	if err != nil {
		return err
	}

	a.broker.Start()
	sub := a.broker.Subscribe()
	defer a.broker.Unsubscribe(sub)
	go logEvents(sub)

	collector := metrics.NewCollector(a.ctrl, 0)
	collector.Start()
	defer collector.Stop()

	server := &http.Server{Addr: addr, Handler: metrics.NewServeMux()}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	recon := reconciler.NewReconciler(a.ctrl, interval, a.broker)
	recon.Start(ctx)

	log.Logger.Info().
		Str("metrics_addr", addr).
		Dur("interval", interval).
		Int("slots", a.ctrl.Size()).
		Msg("Watching fleet")

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err = <-errCh:
	}

	recon.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	return err
}

// logEvents logs fleet events and feeds compute health from reconciliation results
func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for e := range sub {
		switch e.Type {
		case events.EventReconciled:
			if e.Metadata["failed"] == "0" {
				metrics.ReportComponent(metrics.ComponentCompute, nil)
			} else {
				metrics.ReportComponent(metrics.ComponentCompute,
					fmt.Errorf("%s of %s slots failed", e.Metadata["failed"], e.Metadata["slots"]))
			}
		case events.EventWorkerFailed:
			logger.Warn().Str("type", string(e.Type)).Msg(e.Message)
		default:
			logger.Info().Str("type", string(e.Type)).Msg(e.Message)
		}
	}
}

func printReports(out io.Writer, reports []fleet.SlotReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tINSTANCE\tOUTCOME\tERROR")
	for _, r := range reports {
		errText := "-"
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", types.SlotName(r.Index), orDash(r.InstanceID), r.Outcome, errText)
	}
	w.Flush()
}

func printSlots(out io.Writer, slots []types.WorkerSlot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tINSTANCE\tUPDATED")
	for _, s := range slots {
		updated := "-"
		if !s.UpdatedAt.IsZero() {
			updated = s.UpdatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name(), orDash(s.InstanceID), updated)
	}
	w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
