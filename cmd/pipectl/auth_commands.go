package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var username string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the srec backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, err := ctx.tokens()
			if err != nil {
				return err
			}

			reader := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				username, err = promptLine(cmd.ErrOrStderr(), reader, "Username: ")
				if err != nil {
					return err
				}
			}
			if password == "" {
				password, err = promptLine(cmd.ErrOrStderr(), reader, "Password: ")
				if err != nil {
					return err
				}
			}

			result, err := tm.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			cfg := ctx.ensureConfig()
			payload := struct {
				Server             string   `json:"server"`
				Roles              []string `json:"roles"`
				MustChangePassword bool     `json:"must_change_password"`
			}{cfg.ServerURL, result.Roles, result.MustChangePassword}

			return ctx.emit(cmd, payload, func(out io.Writer) {
				fmt.Fprintf(out, "Logged in to %s\n", cfg.ServerURL)
				if len(result.Roles) > 0 {
					fmt.Fprintf(out, "Roles: %s\n", strings.Join(result.Roles, ", "))
				}
				if result.MustChangePassword {
					fmt.Fprintln(out, "The server requires a password change before further use.")
				}
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username (prompted when omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted when omitted)")

	return cmd
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored login session",
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, err := ctx.tokens()
			if err != nil {
				return err
			}
			if !tm.HasSession() {
				return ctx.emit(cmd, map[string]bool{"logged_out": false}, func(out io.Writer) {
					fmt.Fprintln(out, "No stored session.")
				})
			}
			if err := tm.Logout(cmd.Context()); err != nil {
				return err
			}
			return ctx.emit(cmd, map[string]bool{"logged_out": true}, func(out io.Writer) {
				fmt.Fprintln(out, "Logged out.")
			})
		},
	}
}

func promptLine(prompt io.Writer, reader *bufio.Reader, label string) (string, error) {
	fmt.Fprint(prompt, label)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}
