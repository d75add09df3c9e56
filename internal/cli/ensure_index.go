package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ensureDimension int

var ensureIndexCmd = &cobra.Command{
	Use:   "ensure-index [name]",
	Short: "Create an index or verify an existing one",
	Long: `Creates the named index with the ingestion schema, or checks that an
existing index is compatible with it. Existing indexes are never modified.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnsureIndex,
}

func init() {
	ensureIndexCmd.Flags().IntVarP(&ensureDimension, "dimension", "d", 0, "vector dimension (defaults to EMBED_DIM)")
	rootCmd.AddCommand(ensureIndexCmd)
}

func runEnsureIndex(cmd *cobra.Command, args []string) error {
	s, err := loadServices()
	if err != nil {
		return err
	}

	dim := ensureDimension
	if dim == 0 {
		dim = s.VectorDimension
	}
	if err := s.Schemas.EnsureIndex(cmd.Context(), args[0], dim); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Index %s is ready (dimension %d).\n", args[0], dim)
	return nil
}
