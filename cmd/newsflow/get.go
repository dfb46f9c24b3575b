package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/datallboy/newsflow/internal/job"
	"github.com/datallboy/newsflow/internal/nzb"
	"github.com/spf13/cobra"
)

func newGetCmd(opts *rootOptions) *cobra.Command {
	var (
		outDir string
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "get <file.nzb>",
		Short: "Download a single NZB and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := nzb.ParseFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to parse NZB: %w", err)
			}

			a, err := bootstrap(opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.StartEngine(ctx); err != nil {
				return err
			}

			jobOpts := a.JobOptions()
			if outDir != "" {
				jobOpts.OutDir = outDir
			}
			if raw {
				jobOpts.Decode = false
			}

			name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			slot, err := a.Engine.Add(name, inputs, jobOpts)
			if err != nil {
				return err
			}

			started := time.Now()
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if snap, ok := a.Engine.SlotStatus(slot.ID); ok {
						fmt.Print(renderProgress(snap, time.Since(started), false))
					}
				case <-slot.Done():
					if slot.Status() == job.SlotPaused {
						// every connection went away
						fmt.Println()
						return errors.New("download paused: no usable servers left")
					}
					snap, _ := a.Engine.SlotStatus(slot.ID)
					fmt.Println(renderProgress(snap, time.Since(started), true))
					if slot.Status() == job.SlotFailed {
						return fmt.Errorf("download failed: %s", slot.StatusLine())
					}
					return nil
				case <-ctx.Done():
					fmt.Println()
					return ctx.Err()
				}
			}
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (overrides download.out_dir)")
	cmd.Flags().BoolVar(&raw, "raw", false, "store article bodies without decoding")
	return cmd
}
