package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild a user's mastery from their answer history",
	Long:  "Replays every recorded answer with the current calibration. Run it after changing skill parameters.",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, backend, err := openService(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		user, _ := cmd.Flags().GetString("user")
		recs, err := svc.Replay(cmd.Context(), user)
		if err != nil {
			return err
		}

		for _, r := range recs {
			fmt.Printf("%-30s  %5.1f%%  %-9s  %d attempts\n", r.SkillID, r.Probability*100, r.State, r.Attempts)
		}
		fmt.Printf("\n%d skills replayed\n", len(recs))
		return nil
	},
}

func init() {
	replayCmd.Flags().String("user", "", "User ID")
	replayCmd.MarkFlagRequired("user")
}
