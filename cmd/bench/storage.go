package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/benchyard/internal/agent"
)

func newStorageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Shared SD storage commands",
	}

	cmd.AddCommand(newStorageMoveCmd("host"))
	cmd.AddCommand(newStorageMoveCmd("target"))
	cmd.AddCommand(newStorageSwapCmd())
	cmd.AddCommand(newStorageStatusCmd())
	cmd.AddCommand(newStorageWriteCmd())
	return cmd
}

func newStorageMoveCmd(to string) *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   to,
		Short: "Attach the SD card to the " + to,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			if e.agent.StorageLocked(ctx, e.session) {
				return agent.ErrStorageLocked
			}
			var ok bool
			if to == "host" {
				ok = e.agent.StorageToHost(ctx, e.session)
			} else {
				ok = e.agent.StorageToTarget(ctx, e.session)
			}
			if !ok {
				return fmt.Errorf("storage to %s failed", to)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Storage on %s\n", e.agent.StorageStatus(ctx, e.session).Location)
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newStorageSwapCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Move the SD card to the other side",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			if e.agent.StorageLocked(ctx, e.session) {
				return agent.ErrStorageLocked
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Storage on %s\n", e.agent.StorageSwap(ctx, e.session))
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newStorageStatusCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where the SD card is attached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			st := e.agent.StorageStatus(ctx, e.session)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Location: %s\n", st.Location)
			fmt.Fprintf(out, "Locked:   %v\n", e.agent.StorageLocked(ctx, e.session))
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newStorageWriteCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "write <build|image>",
		Short: "Write an image to the SD card",
		Long:  "Writes a build named in the config's builds map, or an image path, to the SD card. The card must be attached to the host. Images ending in .gz, .zst or .lz4 are decompressed on the fly.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			path := args[0]
			if p, ok := e.cfg.Image(path); ok {
				path = p
			}
			if err := e.agent.StorageWriteImage(ctx, e.session, path); err != nil {
				return err
			}
			st := e.agent.StorageStatus(ctx, e.session)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", path, formatBytes(st.Written))
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}
