package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type cameraRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Source   string `json:"source"`
}

func newCamerasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "Manage cameras on the remote service",
	}
	cmd.AddCommand(
		newCamerasListCmd(),
		newCamerasAddCmd(),
		newCamerasUpdateCmd(),
		newCamerasRemoveCmd(),
	)
	return cmd
}

func newCamerasListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cameras known to the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}

			var result struct {
				Cameras []cameraRecord `json:"cameras"`
			}
			if err := client.do("GET", "/admin/cameras", nil, &result); err != nil {
				return err
			}
			if len(result.Cameras) == 0 {
				fmt.Println("No cameras.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tLOCATION\tSOURCE")
			for _, cam := range result.Cameras {
				location := cam.Location
				if location == "" {
					location = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cam.ID, cam.Name, location, cam.Source)
			}
			return w.Flush()
		},
	}
}

func newCamerasAddCmd() *cobra.Command {
	var cam cameraRecord

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cam.Name == "" || cam.Source == "" {
				return fmt.Errorf("--name and --source are required")
			}
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do("POST", "/admin/cameras", cam, nil); err != nil {
				return err
			}
			fmt.Printf("Camera %q created.\n", cam.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&cam.Name, "name", "", "display name")
	cmd.Flags().StringVar(&cam.Location, "location", "", "physical location")
	cmd.Flags().StringVar(&cam.Source, "source", "", "gateway source identifier")
	return cmd
}

func newCamerasUpdateCmd() *cobra.Command {
	var cam cameraRecord

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an existing camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do("PUT", "/admin/cameras/"+args[0], cam, nil); err != nil {
				return err
			}
			fmt.Printf("Camera %s updated.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&cam.Name, "name", "", "display name")
	cmd.Flags().StringVar(&cam.Location, "location", "", "physical location")
	cmd.Flags().StringVar(&cam.Source, "source", "", "gateway source identifier")
	return cmd
}

func newCamerasRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do("DELETE", "/admin/cameras/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Printf("Camera %s deleted.\n", args[0])
			return nil
		},
	}
}
