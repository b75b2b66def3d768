package main

import (
	"errors"

	"talk2me/internal/corscheck"

	"github.com/spf13/cobra"
)

func corsCheckCmd(a *app) *cobra.Command {
	var opts corscheck.Options

	cmd := &cobra.Command{
		Use:   "cors-check",
		Short: "Probe the API's CORS handling from another origin",
		Long: `Sends a CORS preflight for the register endpoint, then a cross-origin
register request, and reports status, timing, CORS headers, all headers
and the response body of each.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.APIURL = a.cfg.APIURL
			report := corscheck.Run(cmd.Context(), opts)

			var err error
			if a.jsonOutput {
				err = report.WriteJSON(a.out)
			} else {
				err = report.WriteText(a.out)
			}
			if err != nil {
				return err
			}
			if !report.Passed() {
				return errors.New("CORS check failed")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Origin, "origin", corscheck.DefaultOrigin, "origin sent with the register request")
	flags.StringVar(&opts.PreflightOrigin, "preflight-origin", corscheck.DefaultPreflightOrigin, "origin sent with the preflight")
	flags.StringVarP(&opts.Username, "username", "u", corscheck.DefaultUsername, "username for the test registration")
	flags.StringVarP(&opts.Password, "password", "p", corscheck.DefaultPassword, "password for the test registration")

	return cmd
}
