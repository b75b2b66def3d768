package main

import (
	"errors"
	"fmt"
	"strings"

	"talk2me/internal/session"

	"github.com/spf13/cobra"
)

var errNotLoggedIn = errors.New("not logged in")

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state := session.AuthChange{
				IsAuthenticated: a.manager.IsAuthenticated(cmd.Context()),
				UserInfo:        a.manager.UserProfile(cmd.Context()),
			}

			var b strings.Builder
			fmt.Fprintf(&b, "API:           %s\n", a.cfg.APIURL)
			if a.cfg.RedisURL != "" {
				b.WriteString("Session store: redis\n")
			} else {
				fmt.Fprintf(&b, "Session store: %s\n", a.cfg.SessionFile)
			}
			if state.IsAuthenticated {
				name := "unknown user"
				if state.UserInfo != nil && state.UserInfo.Username != "" {
					name = state.UserInfo.Username
				}
				fmt.Fprintf(&b, "Status:        logged in as %s", name)
			} else {
				b.WriteString("Status:        logged out")
			}

			return a.print(state, b.String())
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the stored user profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.manager.IsAuthenticated(cmd.Context()) {
				return errNotLoggedIn
			}
			profile := a.manager.UserProfile(cmd.Context())
			if profile == nil {
				return errors.New("no profile stored for this session")
			}

			text := profile.Username
			if profile.Email != "" {
				text += " <" + profile.Email + ">"
			}
			return a.print(profile, text)
		},
	}
}
