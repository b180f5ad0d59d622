package cmd

import (
	"fmt"
	"os"

	"github.com/abhisek/skilltrace/internal/mastery"
	"github.com/abhisek/skilltrace/internal/ui/components"
	"github.com/abhisek/skilltrace/internal/ui/theme"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Record an answer and update the skill's mastery",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, backend, err := openService(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		flags := cmd.Flags()
		sub := mastery.Submission{}
		sub.UserID, _ = flags.GetString("user")
		sub.SkillID, _ = flags.GetString("skill")
		sub.SessionID, _ = flags.GetString("session")
		sub.Correct, _ = flags.GetBool("correct")
		if sub.SessionID == "" {
			sub.SessionID = uuid.NewString()
		}
		if flags.Changed("time") {
			secs, _ := flags.GetFloat64("time")
			sub.TimeSpentSeconds = &secs
		}
		if flags.Changed("confidence") {
			score, _ := flags.GetInt("confidence")
			sub.ConfidenceScore = &score
		}

		res, err := svc.Submit(cmd.Context(), sub)
		if err != nil {
			return err
		}

		fmt.Printf("Recorded answer %s (session %s, seq %d)\n", res.Event.EventID, sub.SessionID, res.Event.Sequence)
		if res.MasteryErr != nil {
			fmt.Fprintln(os.Stderr, theme.Warning.Render("warning: mastery not updated: "+res.MasteryErr.Error()))
			return nil
		}

		upd := res.Mastery
		fmt.Printf("%s  %s  %s\n", theme.Title.Render(upd.SkillID), components.Delta(upd.Before, upd.After), upd.Trend)
		fmt.Printf("  attempts: %d\n", upd.Attempts)
		if upd.Nudge != 0 {
			fmt.Printf("  signal adjustment: %+.4f\n", upd.Nudge)
		}
		if upd.Degenerate {
			fmt.Println(theme.Warning.Render("  evidence was uninformative; prior carried through"))
		}
		if tr := upd.Transition; tr != nil {
			fmt.Printf("  %s → %s (%s)\n", mastery.DisplayLabel(tr.From), mastery.DisplayLabel(tr.To), tr.Trigger)
		}
		return nil
	},
}

func init() {
	answerCmd.Flags().String("user", "", "User ID")
	answerCmd.Flags().String("skill", "", "Skill ID")
	answerCmd.Flags().String("session", "", "Session ID (default: a new session)")
	answerCmd.Flags().Bool("correct", false, "The answer was correct")
	answerCmd.Flags().Bool("incorrect", false, "The answer was incorrect")
	answerCmd.Flags().Float64("time", 0, "Seconds spent on the question")
	answerCmd.Flags().Int("confidence", 0, "Self-reported confidence, 1-5")

	answerCmd.MarkFlagRequired("user")
	answerCmd.MarkFlagRequired("skill")
	answerCmd.MarkFlagsMutuallyExclusive("correct", "incorrect")
	answerCmd.MarkFlagsOneRequired("correct", "incorrect")
}
