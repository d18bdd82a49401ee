package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type viewStatus struct {
	PageIndex    int      `json:"pageIndex"`
	PageCount    int      `json:"pageCount"`
	PageName     string   `json:"pageName"`
	PageNames    []string `json:"pageNames"`
	TimerSeconds int      `json:"timerSeconds"`
	AutoCycle    bool     `json:"autoCycle"`
	AllowLive    bool     `json:"allowLive"`
	Offline      bool     `json:"offline"`
	ProfileID    string   `json:"profileId"`
	ProfileName  string   `json:"profileName"`
	AdminOpen    bool     `json:"adminOpen"`
	Tiles        []struct {
		Slot   int    `json:"slot"`
		Source string `json:"source"`
		Label  string `json:"label"`
		Status string `json:"status"`
	} `json:"tiles"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current view state of a running engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}

			var state viewStatus
			if err := client.do("GET", "/view", nil, &state); err != nil {
				return err
			}

			connectivity := "online"
			if state.Offline {
				connectivity = "offline (serving last known state)"
			}

			fmt.Printf("Page:      %s (%d/%d)\n", state.PageName, state.PageIndex+1, state.PageCount)
			fmt.Printf("Timer:     %ds (auto-cycle %v)\n", state.TimerSeconds, state.AutoCycle)
			if state.ProfileName != "" {
				fmt.Printf("Profile:   %s\n", state.ProfileName)
			}
			fmt.Printf("Source:    %s\n", connectivity)
			if state.AdminOpen {
				fmt.Println("Admin:     open")
			}

			if len(state.Tiles) == 0 {
				return nil
			}

			fmt.Println()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLOT\tSOURCE\tLABEL\tSTATUS")
			for _, tile := range state.Tiles {
				source := tile.Source
				if source == "" {
					source = "-"
				}
				label := tile.Label
				if label == "" {
					label = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", tile.Slot, source, label, tile.Status)
			}
			return w.Flush()
		},
	}
}
