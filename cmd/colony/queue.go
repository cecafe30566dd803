package main

import (
	"fmt"
	"time"

	"github.com/cuemby/colony/pkg/types"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Create channels and relay messages",
	Long: `Queue commands operate on the four ordered channels:

  local-manager     local client to manager
  manager-local     manager to local client
  manager-workers   manager to workers
  workers-manager   workers to manager`,
}

var queueInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create every channel (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.queues.CreateAll(cmd.Context()); err != nil {
			return err
		}
		for _, dir := range types.Directions {
			desc, err := a.queues.Descriptor(dir)
			if err != nil {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %-16s %s\n", dir, desc.Name)
		}
		return nil
	},
}

var queueSendCmd = &cobra.Command{
	Use:   "send DIRECTION BODY",
	Short: "Send one message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := types.ParseDirection(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.ctrl.Send(cmd.Context(), dir, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var queueReceiveCmd = &cobra.Command{
	Use:   "receive DIRECTION",
	Short: "Receive and acknowledge at most one message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := types.ParseDirection(args[0])
		if err != nil {
			return err
		}
		wait, _ := cmd.Flags().GetDuration("wait")
		if !cmd.Flags().Changed("wait") {
			wait = time.Duration(cfg.Queues.WaitSeconds) * time.Second
		}

		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		msg, err := a.ctrl.ReceiveWithin(cmd.Context(), dir, wait)
		if err != nil {
			return err
		}
		if msg == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No message")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg.Body)
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueInitCmd)
	queueCmd.AddCommand(queueSendCmd)
	queueCmd.AddCommand(queueReceiveCmd)

	queueReceiveCmd.Flags().Duration("wait", 10*time.Second, "Long-poll window (max 20s)")
}
