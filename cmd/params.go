package cmd

import (
	"fmt"
	"strings"

	"github.com/abhisek/skilltrace/internal/bkt"
	"github.com/spf13/cobra"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Manage per-skill calibration",
}

var paramsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored skill calibrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, backend, err := openService(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		recs, err := backend.ParamsRepo().List(cmd.Context())
		if err != nil {
			return err
		}

		// Header.
		fmt.Printf("%-30s  %7s  %9s  %7s  %7s\n", "Skill", "Prior", "P(T)", "P(S)", "P(G)")
		fmt.Println(strings.Repeat("─", 70))

		for _, r := range recs {
			fmt.Printf("%-30s  %7.3f  %9.3f  %7.3f  %7.3f\n", r.SkillID, r.Prior, r.Transit, r.Slip, r.Guess)
		}

		def, prior, err := svc.ResolveParams(cmd.Context(), "")
		if err != nil {
			return err
		}
		fmt.Printf("%-30s  %7.3f  %9.3f  %7.3f  %7.3f\n", "(default)", prior, def.Transit, def.Slip, def.Guess)
		fmt.Printf("\n%d stored calibrations\n", len(recs))
		return nil
	},
}

var paramsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a calibration for a skill (unset flags keep the current value)",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, backend, err := openService(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		flags := cmd.Flags()
		skill, _ := flags.GetString("skill")
		params, prior, err := svc.ResolveParams(cmd.Context(), skill)
		if err != nil {
			return err
		}
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

		if err := svc.SetParams(cmd.Context(), skill, params, prior); err != nil {
			return err
		}
		fmt.Printf("Saved %s: prior=%.3f p_transit=%.3f p_slip=%.3f p_guess=%.3f\n",
			skill, prior, params.Transit, params.Slip, params.Guess)
		if !params.Standard() {
			fmt.Println("note: p_slip + p_guess >= 1, so a correct answer will lower mastery")
		}
		return nil
	},
}

func init() {
	paramsSetCmd.Flags().String("skill", "", "Skill ID")
	paramsSetCmd.Flags().Float64("prior", bkt.DefaultPrior, "Initial mastery probability")
	paramsSetCmd.Flags().Float64("transit", bkt.DefaultParams.Transit, "Probability of learning per attempt")
	paramsSetCmd.Flags().Float64("slip", bkt.DefaultParams.Slip, "Probability of answering wrong despite mastery")
	paramsSetCmd.Flags().Float64("guess", bkt.DefaultParams.Guess, "Probability of answering right without mastery")
	paramsSetCmd.MarkFlagRequired("skill")

	paramsCmd.AddCommand(paramsListCmd)
	paramsCmd.AddCommand(paramsSetCmd)
}
