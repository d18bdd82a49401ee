package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against a running engine and print the session token",
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

			var result struct {
				Token     string `json:"token"`
				Role      string `json:"role"`
				ProfileID string `json:"profileId"`
			}
			if err := client.do("POST", "/auth/login", map[string]string{"password": password}, &result); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Logged in with role %q.\n", result.Role)
			fmt.Println(result.Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}
