package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage display profiles on the remote service",
	}
	cmd.AddCommand(
		newProfilesListCmd(),
		newProfilesCreateCmd(),
		newProfilesRenameCmd(),
		newProfilesRemoveCmd(),
		newProfilesActivateCmd(),
		newProfilesLiveCmd(),
	)
	return cmd
}

func newProfilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles known to the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}

			var result struct {
				Profiles []struct {
					ID     string `json:"id"`
					Name   string `json:"name"`
					Slides []struct {
						Name string `json:"name"`
					} `json:"slides"`
					AllowLive bool `json:"allowLive"`
				} `json:"profiles"`
				ActiveProfileID string `json:"activeProfileId"`
			}
			if err := client.do("GET", "/admin/profiles", nil, &result); err != nil {
				return err
			}
			if len(result.Profiles) == 0 {
				fmt.Println("No profiles.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSLIDES\tLIVE\tACTIVE")
			for _, p := range result.Profiles {
				active := ""
				if p.ID == result.ActiveProfileID {
					active = "*"
				}
				live := "no"
				if p.AllowLive {
					live = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", p.ID, p.Name, len(p.Slides), live, active)
			}
			return w.Flush()
		},
	}
}

func newProfilesCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do("POST", "/admin/profiles", map[string]string{"name": args[0]}, nil); err != nil {
				return err
			}
			fmt.Printf("Profile %q created.\n", args[0])
			return nil
		},
	}
}

func newProfilesRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do("PUT", "/admin/profiles/"+args[0], map[string]string{"name": args[1]}, nil); err != nil {
				return err
			}
			fmt.Printf("Profile %s renamed to %q.\n", args[0], args[1])
			return nil
		},
	}
}

func newProfilesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do("DELETE", "/admin/profiles/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Printf("Profile %s deleted.\n", args[0])
			return nil
		},
	}
}

func newProfilesLiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "live <id> <on|off>",
		Short: "Toggle inline live video for a profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var allowLive bool
			switch args[1] {
			case "on":
				allowLive = true
			case "off":
				allowLive = false
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do("PUT", "/admin/profiles/"+args[0]+"/live", map[string]bool{"allowLive": allowLive}, nil); err != nil {
				return err
			}
			fmt.Printf("Profile %s live video %s.\n", args[0], args[1])
			return nil
		},
	}
}

func newProfilesActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Make a profile the active one for all viewers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do("PUT", "/admin/active-profile", map[string]string{"profileId": args[0]}, nil); err != nil {
				return err
			}
			fmt.Printf("Profile %s is now active.\n", args[0])
			return nil
		},
	}
}
