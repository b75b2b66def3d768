package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"talk2me/internal/session"

	"github.com/spf13/cobra"
)

type credentials struct {
	username      string
	password      string
	passwordStdin bool
}

func (c *credentials) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&c.password, "password", "p", "", "account password")
	cmd.Flags().BoolVar(&c.passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("username")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

func (c *credentials) resolve(in io.Reader) error {
	if c.passwordStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read password: %w", err)
		}
		c.password = strings.TrimRight(line, "\r\n")
	}
	if c.password == "" {
		c.password = os.Getenv("TALK2ME_PASSWORD")
	}
	if c.password == "" {
		return errors.New("a password is required (--password, --password-stdin or TALK2ME_PASSWORD)")
	}
	return nil
}

func loginCmd(a *app) *cobra.Command {
	var creds credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.resolve(cmd.InOrStdin()); err != nil {
				return err
			}
			raw, err := a.manager.Login(cmd.Context(), creds.username, creds.password)
			if err != nil {
				return err
			}
			profile := a.manager.UserProfile(cmd.Context())
			name := creds.username
			if profile != nil && profile.Username != "" {
				name = profile.Username
			}
			return a.print(json.RawMessage(raw), "Logged in as "+name)
		},
	}
	creds.bind(cmd)

	return cmd
}

func registerCmd(a *app) *cobra.Command {
	var (
		creds credentials
		email string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.resolve(cmd.InOrStdin()); err != nil {
				return err
			}
			raw, err := a.manager.Register(cmd.Context(), session.RegisterRequest{
				Username: creds.username,
				Password: creds.password,
				Email:    email,
			})
			if err != nil {
				return err
			}
			return a.print(json.RawMessage(raw), serverMessage(raw, "Registered "+creds.username))
		},
	}
	creds.bind(cmd)
	cmd.Flags().StringVar(&email, "email", "", "optional email address")

	return cmd
}

func refreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the stored refresh token for new tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.manager.RefreshToken(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(json.RawMessage(raw), "Token refreshed")
		},
	}
}

func verifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Ask the server whether the stored access token is valid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.manager.VerifyAuth(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(json.RawMessage(raw), serverMessage(raw, "Token is valid"))
		},
	}
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.manager.Logout(cmd.Context()); err != nil {
				return err
			}
			return a.print(map[string]bool{"isAuthenticated": false}, "Logged out")
		},
	}
}

// serverMessage returns the "message" field of a JSON body, or fallback.
func serverMessage(raw json.RawMessage, fallback string) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return fallback
}
