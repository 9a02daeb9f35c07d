package cli

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// passwordFlags resolves --password or --password-stdin
type passwordFlags struct {
	password string
	stdin    bool
}

func (p *passwordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.password, "password", "", "Password")
	cmd.Flags().BoolVar(&p.stdin, "password-stdin", false, "Read the password from stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

func (p *passwordFlags) value(cmd *cobra.Command) (string, error) {
	if !p.stdin {
		if p.password == "" {
			return "", errors.New("--password or --password-stdin is required")
		}
		return p.password, nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newRegisterCmd() *cobra.Command {
	var name, nickname, cpf, email string
	var pw passwordFlags

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.value(cmd)
			if err != nil {
				return err
			}

			req := map[string]string{
				"action":   "register",
				"name":     name,
				"nickname": nickname,
				"cpf":      cpf,
				"email":    email,
				"password": password,
			}
			var result Payload

			if err := client.Post("/auth", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name (required)")
	cmd.Flags().StringVar(&nickname, "nickname", "", "Nickname (required)")
	cmd.Flags().StringVar(&cpf, "cpf", "", "CPF, with or without punctuation (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	pw.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("nickname")
	_ = cmd.MarkFlagRequired("cpf")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newLoginCmd() *cobra.Command {
	var email string
	var pw passwordFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.value(cmd)
			if err != nil {
				return err
			}

			req := map[string]string{
				"action":   "login",
				"email":    email,
				"password": password,
			}
			var result LoginResult

			header, err := client.Do(http.MethodPost, "/auth", req, &result.Payload)
			if err != nil {
				return err
			}
			result.Token = header.Get(TokenHeader)
			if result.Token == "" {
				return errors.New("server did not return a session token")
			}

			// Save token
			if err := cfg.SaveToken(result.Token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	pw.register(cmd)
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Token == "" {
				return errors.New("not logged in")
			}

			var result Payload
			err := client.Post("/auth/logout", nil, &result)

			// A rejected token is gone server-side either way
			var apiErr *APIError
			if err == nil || (errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized) {
				if clearErr := cfg.ClearToken(); clearErr != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to remove token file: %s\n", clearErr)
				}
			}
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the logged-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result MeResult

			if err := client.Get("/auth/me", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}
