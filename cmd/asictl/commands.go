package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/liuyenting/olive-motion-asi/asi"
	"github.com/liuyenting/olive-motion-asi/serialport"
)

func portsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports on this machine",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			infos, err := serialport.Details()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no serial ports found")
				return nil
			}

			for _, info := range infos {
				if !info.IsUSB {
					fmt.Println(info.Name)
					continue
				}

				fmt.Printf("%s\tUSB %s:%s", info.Name, info.VID, info.PID)
				if info.SerialNumber != "" {
					fmt.Printf(" SN %s", info.SerialNumber)
				}
				if info.Product != "" {
					fmt.Printf(" (%s)", info.Product)
				}
				fmt.Println()
			}

			return nil
		},
	}
}

func identifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "identify",
		Short: "Probe the controller identity and, on Tiger, its card table",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := opContext()
			defer cancel()

			ctrl, release, err := openController(ctx)
			if err != nil {
				return err
			}
			defer release()

			id, _ := ctrl.Identity()
			fmt.Printf("vendor:  %s\nmodel:   %s\nversion: %s\n", id.Vendor, id.Model, id.Version)

			d := ctrl.Dialect()
			if !d.CardAddressed() {
				return nil
			}

			cards, err := ctrl.QueryCards(ctx)
			if err != nil {
				return err
			}
			for _, card := range cards {
				fmt.Printf("card %d: %s %s %s\n", card.Address, card.Function, card.Version, card.Character)
			}

			return nil
		},
	}
}

func axesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "axes",
		Short: "Enumerate motion axes and report their current state",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := opContext()
			defer cancel()

			ctrl, release, err := openController(ctx)
			if err != nil {
				return err
			}
			defer release()

			axes, err := ctrl.EnumerateAxes(ctx)
			if err != nil {
				return err
			}
			if len(axes) == 0 {
				fmt.Println("no motion axes found")
				return nil
			}

			// Axes stay open here: closing one halts the controller, which
			// would kill a move started by an earlier `move --nowait`.
			for _, axis := range axes {
				if err := axis.Open(ctx); err != nil {
					return err
				}

				pos, err := axis.Position(ctx)
				if err != nil {
					return err
				}
				vel, err := axis.Velocity(ctx)
				if err != nil {
					return err
				}
				lo, hi, err := axis.Limits(ctx)
				if err != nil {
					return err
				}
				mult, err := axis.UnitMultiplier()
				if err != nil {
					return err
				}

				fmt.Printf("%s\tpos %g\tvel %g\tlimits [%g, %g]\tsteps/unit %g\n",
					axis.Label(), pos, vel, lo, hi, mult)
			}

			return nil
		},
	}
}

func positionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "position <axis>",
		Short: "Print the current position of an axis",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := opContext()
			defer cancel()

			axis, release, err := openAxis(ctx, args[0])
			if err != nil {
				return err
			}
			defer release()

			pos, err := axis.Position(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%g\n", pos)

			return nil
		},
	}
}

func moveCommand() *cobra.Command {
	var (
		relative bool
		nowait   bool
	)

	cmd := &cobra.Command{
		Use:   "move <axis> <target>",
		Short: "Move an axis to an absolute position (or by a relative delta)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			target, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid target %q: %w", args[1], err)
			}

			ctx, cancel := opContext()
			defer cancel()

			axis, release, err := openAxis(ctx, args[0])
			if err != nil {
				return err
			}
			defer release()

			if relative {
				err = axis.MoveRelative(ctx, target, !nowait)
			} else {
				err = axis.MoveAbsolute(ctx, target, !nowait)
			}
			if err != nil {
				stopOnAbort(axis, err)
				return err
			}

			if nowait {
				return nil
			}

			pos, err := axis.Position(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s at %g\n", axis.Label(), pos)

			return nil
		},
	}
	cmd.Flags().BoolVarP(&relative, "relative", "r", false, "Treat target as a delta from the current position")
	cmd.Flags().BoolVar(&nowait, "nowait", false, "Start the move and exit without waiting for completion")

	return cmd
}

func homeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "home <axis>",
		Short: "Move an axis to its origin",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := opContext()
			defer cancel()

			axis, release, err := openAxis(ctx, args[0])
			if err != nil {
				return err
			}
			defer release()

			if err := axis.Home(ctx, true); err != nil {
				stopOnAbort(axis, err)
				return err
			}

			pos, err := axis.Position(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s at %g\n", axis.Label(), pos)

			return nil
		},
	}
}

func calibrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate <axis>",
		Short: "Find both limit switches, center the origin and set working limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := opContext()
			defer cancel()

			axis, release, err := openAxis(ctx, args[0])
			if err != nil {
				return err
			}
			defer release()

			if err := axis.Calibrate(ctx); err != nil {
				stopOnAbort(axis, err)
				return err
			}

			lo, hi, err := axis.Limits(ctx)
			if err != nil {
				return err
			}
			pos, err := axis.Position(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s calibrated: limits [%g, %g], at %g\n", axis.Label(), lo, hi, pos)

			return nil
		},
	}
}

func haltCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "halt",
		Short: "Stop all motion immediately",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := opContext()
			defer cancel()

			ctrl, release, err := openController(ctx)
			if err != nil {
				return err
			}
			defer release()

			return ctrl.Halt(ctx)
		},
	}
}

func rawCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "raw <verb> [arg...]",
		Short: "Send a raw protocol command and print the reply payload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := opContext()
			defer cancel()

			ctrl, release, err := openController(ctx)
			if err != nil {
				return err
			}
			defer release()

			command := asi.NewCommand(args[0])
			for _, arg := range args[1:] {
				command = command.WithArg(arg)
			}

			reply, err := ctrl.Send(ctx, command)
			if err != nil {
				return err
			}
			if reply != "" {
				fmt.Println(reply)
			}

			return nil
		},
	}
}
