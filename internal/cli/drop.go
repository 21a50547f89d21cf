package cli

import (
	"github.com/spf13/cobra"
)

func (a *app) dropCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drop",
		Short: "Remove every book, every secondary index and the data file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.db.DropDatabase(cmd.Context()); err != nil {
				return err
			}
			a.out.success("Database dropped")
			return nil
		},
	}
}
