package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newUSBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usb",
		Short: "Switchable USB port commands",
	}

	cmd.AddCommand(newUSBPowerCmd(true))
	cmd.AddCommand(newUSBPowerCmd(false))
	cmd.AddCommand(newUSBStatusCmd())
	return cmd
}

func newUSBPowerCmd(on bool) *cobra.Command {
	var flags commonFlags
	use, short := "off <port>", "Power a USB port off"
	if on {
		use, short = "on <port>", "Power a USB port on"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  short + ". Ports are numbered from 1 in config order.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid port %q", args[0])
			}
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			var ok bool
			if on {
				ok, err = e.agent.USBOn(ctx, e.session, n)
			} else {
				ok, err = e.agent.USBOff(ctx, e.session, n)
			}
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("usb port %d did not switch", n)
			}
			st, _ := e.agent.USBStatus(ctx, e.session, n)
			fmt.Fprintf(cmd.OutOrStdout(), "USB %d %s\n", n, st)
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newUSBStatusCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List USB ports and their power state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			out := cmd.OutOrStdout()
			if e.agent.USBPorts() == 0 {
				fmt.Fprintln(out, "No USB ports configured.")
				return nil
			}
			fmt.Fprintf(out, "%-5s %-10s %s\n", "PORT", "CLASS", "STATUS")
			for i, p := range e.agent.USB.Ports() {
				st, _ := e.agent.USBStatus(ctx, e.session, i+1)
				class := p.Class
				if class == "" {
					class = "-"
				}
				fmt.Fprintf(out, "%-5d %-10s %s\n", i+1, class, st)
			}
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}
