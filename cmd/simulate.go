package cmd

import (
	"fmt"

	"github.com/abhisek/skilltrace/internal/bkt"
	"github.com/abhisek/skilltrace/internal/config"
	"github.com/abhisek/skilltrace/internal/mastery"
	"github.com/abhisek/skilltrace/internal/ui/components"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Trace mastery over a sequence of answers without touching the database",
	Example: `  skilltrace simulate --answers 1101111
  skilltrace simulate --prior 0.1 --transit 0.2 --answers 0011`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		params, prior := simulationParams(cmd, cfg)
		answers, _ := flags.GetString("answers")
		obs, err := parseAnswers(answers)
		if err != nil {
			return err
		}

		steps, err := mastery.Simulate(params, prior, cfg.Signals, obs)
		if err != nil {
			return err
		}

		fmt.Printf("prior=%.3f p_transit=%.3f p_slip=%.3f p_guess=%.3f\n\n", prior, params.Transit, params.Slip, params.Guess)
		for i, step := range steps {
			mark := "✗"
			if step.Observation.Correct {
				mark = "✓"
			}
			bar := components.NewProgressBar(fmt.Sprintf("%3d %s", i+1, mark), step.Result.State.Probability, string(step.State), barWidth)
			line := bar.View()
			if tr := step.Transition; tr != nil {
				line += "  " + string(tr.To)
			}
			fmt.Println(line)
		}
		return nil
	},
}

// simulationParams starts from the configured defaults and applies any
// calibration flags the user set.
func simulationParams(cmd *cobra.Command, cfg *config.Config) (bkt.Params, float64) {
	flags := cmd.Flags()
	params, prior := cfg.BKT.Params(), cfg.BKT.Prior
	if flags.Changed("prior") {
		prior, _ = flags.GetFloat64("prior")
	}
	if flags.Changed("transit") {
		params.Transit, _ = flags.GetFloat64("transit")
	}
	if flags.Changed("slip") {
		params.Slip, _ = flags.GetFloat64("slip")
	}
	if flags.Changed("guess") {
		params.Guess, _ = flags.GetFloat64("guess")
	}
	return params, prior
}

// parseAnswers turns a string such as "1101" into observations. Spaces and
// commas are ignored.
func parseAnswers(s string) ([]bkt.Observation, error) {
	var obs []bkt.Observation
	for i, r := range s {
		switch r {
		case '1':
			obs = append(obs, bkt.Correct())
		case '0':
			obs = append(obs, bkt.Incorrect())
		case ' ', ',':
		default:
			return nil, fmt.Errorf("answers: unexpected %q at position %d, use 1 for correct and 0 for incorrect", r, i)
		}
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("answers: no answers given")
	}
	return obs, nil
}

func init() {
	simulateCmd.Flags().String("answers", "", "Answer sequence, e.g. 1101 (1 = correct)")
	simulateCmd.Flags().Float64("prior", bkt.DefaultPrior, "Initial mastery probability")
	simulateCmd.Flags().Float64("transit", bkt.DefaultParams.Transit, "Probability of learning per attempt")
	simulateCmd.Flags().Float64("slip", bkt.DefaultParams.Slip, "Probability of answering wrong despite mastery")
	simulateCmd.Flags().Float64("guess", bkt.DefaultParams.Guess, "Probability of answering right without mastery")
	simulateCmd.MarkFlagRequired("answers")
}
