package cli

import (
	"github.com/forPelevin/vidqa/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the timeline, search and question API for a captioned video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			k, _ := cmd.Flags().GetInt("k")

			caps, err := loadCaptionsFlag(cmd)
			if err != nil {
				return err
			}
			env, err := openEnv(cmd, envOptions{})
			if err != nil {
				return err
			}
			defer env.Close()

			return server.New(env.UC, caps, k).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().String("captions", "", "Captions JSON of the video")
	cmd.Flags().String("addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().Int("k", 5, "Default number of frames per search or answer")
	return cmd
}
