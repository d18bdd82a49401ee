package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newNavCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nav",
		Short: "Drive navigation on a running engine",
	}
	cmd.AddCommand(
		newNavStepCmd("next", "Advance to the next page", "/view/next"),
		newNavStepCmd("prev", "Go back to the previous page", "/view/prev"),
		newNavPageCmd(),
		newNavTimerCmd(),
		newNavExpandCmd(),
		newNavCollapseCmd(),
	)
	return cmd
}

func newNavStepCmd(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			var state viewStatus
			if err := client.do("POST", path, nil, &state); err != nil {
				return err
			}
			fmt.Printf("Now on page %s (%d/%d).\n", state.PageName, state.PageIndex+1, state.PageCount)
			return nil
		},
	}
}

func newNavPageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "page <index>",
		Short: "Jump to a page by zero-based index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid page index %q", args[0])
			}
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			var state viewStatus
			if err := client.do("PUT", "/view/page", map[string]int{"index": index}, &state); err != nil {
				return err
			}
			fmt.Printf("Now on page %s (%d/%d).\n", state.PageName, state.PageIndex+1, state.PageCount)
			return nil
		},
	}
}

func newNavTimerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timer <seconds>",
		Short: "Set the slide cycle interval in seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid timer value %q", args[0])
			}
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			var state viewStatus
			if err := client.do("PUT", "/view/timer", map[string]int{"seconds": seconds}, &state); err != nil {
				return err
			}
			fmt.Printf("Cycle timer set to %ds.\n", state.TimerSeconds)
			return nil
		},
	}
}

func newNavExpandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand <slot>",
		Short: "Expand a tile slot to full view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid slot %q", args[0])
			}
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do("POST", "/view/expand", map[string]int{"slot": slot}, nil); err != nil {
				return err
			}
			fmt.Printf("Slot %d expanded.\n", slot)
			return nil
		},
	}
}

func newNavCollapseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collapse",
		Short: "Collapse the expanded tile, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do("POST", "/view/collapse", nil, nil); err != nil {
				return err
			}
			fmt.Println("Collapsed.")
			return nil
		},
	}
}
