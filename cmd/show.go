package cmd

import (
	"fmt"

	"github.com/abhisek/skilltrace/internal/mastery"
	"github.com/abhisek/skilltrace/internal/ui/components"
	"github.com/abhisek/skilltrace/internal/ui/theme"
	"github.com/spf13/cobra"
)

const barWidth = 60

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a user's mastery of every attempted skill",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, backend, err := openService(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		user, _ := cmd.Flags().GetString("user")
		views, err := svc.Masteries(cmd.Context(), user)
		if err != nil {
			return err
		}
		if len(views) == 0 {
			fmt.Println("No skills attempted yet.")
			return nil
		}

		labelWidth := 0
		for _, v := range views {
			labelWidth = max(labelWidth, len(v.SkillID))
		}

		fmt.Println(theme.Title.Render("Mastery for " + user))
		for _, v := range views {
			bar := components.NewProgressBar(v.SkillID, v.Probability, string(v.State), barWidth)
			bar.LabelWidth = labelWidth
			fmt.Println(bar.View())
			fmt.Println(theme.Hint.Render(fmt.Sprintf("%*s  %s · %d attempts · %.0f%% correct · next answer %.0f%% likely",
				labelWidth, "", mastery.DisplayLabel(v.State), v.Attempts, v.Accuracy()*100, v.PredictCorrect*100)))
		}
		return nil
	},
}

func init() {
	showCmd.Flags().String("user", "", "User ID")
	showCmd.MarkFlagRequired("user")
}
