package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var objectCmd = &cobra.Command{
	Use:   "object",
	Short: "Transfer files through the shared bucket",
}

var objectPutCmd = &cobra.Command{
	Use:   "put PATH [KEY]",
	Short: "Upload a file (key defaults to the file name)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		workerProgram, _ := cmd.Flags().GetBool("worker-program")

		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if workerProgram {
			if err := a.ctrl.UploadWorkerProgram(cmd.Context(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Uploaded %s as %s\n", path, cfg.Fleet.WorkerKey)
			return nil
		}

		key := filepath.Base(path)
		if len(args) == 2 {
			key = args[1]
		}
		if err := a.ctrl.UploadFile(cmd.Context(), path, key); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Uploaded %s as %s\n", path, key)
		return nil
	},
}

var objectGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Download an object into the files directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.ctrl.DownloadFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Downloaded %s to %s\n", args[0], path)
		return nil
	},
}

func init() {
	objectCmd.AddCommand(objectPutCmd)
	objectCmd.AddCommand(objectGetCmd)

	objectPutCmd.Flags().Bool("worker-program", false, "Upload as the worker program every new instance runs")
}
