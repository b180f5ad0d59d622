package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/skilltrace/internal/ui/theme"
	"github.com/spf13/cobra"
)

var improvementsCmd = &cobra.Command{
	Use:   "improvements",
	Short: "Show how a session changed a user's mastery",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		since, _ := flags.GetString("since")
		start, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return fmt.Errorf("--since must be RFC3339: %w", err)
		}

		svc, backend, err := openService(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		user, _ := flags.GetString("user")
		session, _ := flags.GetString("session")
		imps, err := svc.Improvements(cmd.Context(), user, session, start)
		if err != nil {
			return err
		}
		if len(imps) == 0 {
			fmt.Println("No skills practised in this session.")
			return nil
		}

		// Header.
		fmt.Printf("%-30s  %8s  %8s  %9s  %8s\n", "Skill", "Before", "Now", "Change", "Correct")
		fmt.Println(strings.Repeat("─", 72))

		for _, imp := range imps {
			change := fmt.Sprintf("%+9.1f", imp.MasteryIncrease)
			switch {
			case imp.MasteryIncrease > 0:
				change = theme.Up.Render(change)
			case imp.MasteryIncrease < 0:
				change = theme.Down.Render(change)
			}
			fmt.Printf("%-30s  %7.1f%%  %7.1f%%  %s  %4d/%-3d\n",
				imp.SkillID, imp.MasteryBefore*100, imp.CurrentPercentage, change,
				imp.CorrectAttempts, imp.TotalAttempts)
		}
		return nil
	},
}

func init() {
	improvementsCmd.Flags().String("user", "", "User ID")
	improvementsCmd.Flags().String("session", "", "Session ID")
	improvementsCmd.Flags().String("since", "", "Session start time (RFC3339)")
	improvementsCmd.MarkFlagRequired("user")
	improvementsCmd.MarkFlagRequired("session")
	improvementsCmd.MarkFlagRequired("since")
}
