package cmd

import (
	"fmt"
	"sort"

	"github.com/abhisek/skilltrace/internal/mastery"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Record a snapshot of a user's current mastery",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, backend, err := openService(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		user, _ := cmd.Flags().GetString("user")
		typ, _ := cmd.Flags().GetString("type")
		session, _ := cmd.Flags().GetString("session")

		snap, err := svc.TakeSnapshot(cmd.Context(), user, typ, session)
		if err != nil {
			return err
		}

		fmt.Printf("Snapshot %s (%s) at %s\n", snap.SnapshotID, snap.Type, snap.Timestamp.Format("2006-01-02 15:04:05"))
		skills := make([]string, 0, len(snap.Data.Skills))
		for id := range snap.Data.Skills {
			skills = append(skills, id)
		}
		sort.Strings(skills)
		for _, id := range skills {
			fmt.Printf("  %-30s  %5.1f%%\n", id, snap.Data.Skills[id]*100)
		}
		return nil
	},
}

func init() {
	snapshotCmd.Flags().String("user", "", "User ID")
	snapshotCmd.Flags().String("type", mastery.SnapshotManual, "Snapshot type, e.g. session_complete")
	snapshotCmd.Flags().String("session", "", "Session the snapshot closes")
	snapshotCmd.MarkFlagRequired("user")
}
