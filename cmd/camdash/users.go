package main

import (
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage remote service logins",
	}
	cmd.AddCommand(
		newUsersListCmd(),
		newUsersAddCmd(),
		newUsersRemoveCmd(),
	)
	return cmd
}

func newUsersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List remote users",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}

			var result struct {
				Users []struct {
					ID       string `json:"id"`
					Username string `json:"username"`
					Role     string `json:"role"`
				} `json:"users"`
			}
			if err := client.do("GET", "/admin/users", nil, &result); err != nil {
				return err
			}
			if len(result.Users) == 0 {
				fmt.Println("No users.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tROLE")
			for _, u := range result.Users {
				fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Username, u.Role)
			}
			return w.Flush()
		},
	}
}

func newUsersAddCmd() *cobra.Command {
	var role, password string

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a remote user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}

			if password == "" {
				fmt.Fprint(os.Stderr, "Password: ")
				raw, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Fprintln(os.Stderr)
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = string(raw)
			}

			body := map[string]string{
				"username": args[0],
				"password": password,
				"role":     role,
			}
			if err := client.do("POST", "/admin/users", body, nil); err != nil {
				return err
			}
			fmt.Printf("User %q created with role %s.\n", args[0], role)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "kiosk", "role for the new user (kiosk, privileged, admin)")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func newUsersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a remote user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do("DELETE", "/admin/users/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Printf("User %s deleted.\n", args[0])
			return nil
		},
	}
}
