package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/junsooki/screencast/internal/control"
)

func newControlCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:       "control <pause|resume|blank|unblank|terminate|state>",
		Short:     "Send a command to a running caster",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{control.TypePause, control.TypeResume, control.TypeBlank, control.TypeUnblank, control.TypeTerminate, control.TypeState},
		RunE: func(cmd *cobra.Command, args []string) error {
			client := control.NewClient(url)
			if err := client.Connect(); err != nil {
				return err
			}
			defer client.Close()

			state, err := client.Send(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "paused=%t blanked=%t terminate=%t\n",
				state.Paused, state.Blanked, state.Terminate)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://127.0.0.1:12346/control", "Caster control endpoint")
	return cmd
}
