package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/Indexa/internal/models"
	"github.com/markdave123-py/Indexa/internal/services"
)

var (
	ingestIndex string
	ingestJSON  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest local files into an index",
	Long: `Extracts, chunks, embeds and indexes the given files as one job.
Without --index the configured index policy picks the target index.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestIndex, "index", "i", "", "target index name")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the job result as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	s, err := loadServices()
	if err != nil {
		return err
	}

	uploads := make([]services.Upload, 0, len(args))
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		uploads = append(uploads, services.Upload{Name: filepath.Base(path), Size: info.Size(), Body: f})
	}

	res, runErr := s.Jobs.Submit(cmd.Context(), ingestIndex, uploads)
	if res == nil {
		return fmt.Errorf("ingestion failed: %w", runErr)
	}

	if ingestJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		printJob(cmd, res)
	}

	switch {
	case runErr != nil:
		return fmt.Errorf("ingestion failed: %w", runErr)
	case res.Status == models.JobFailed:
		return errors.New("no document was indexed")
	}
	return nil
}

func printJob(cmd *cobra.Command, res *models.JobResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s -> index %s: %s\n", res.JobID, res.IndexName, res.Status)
	for _, d := range res.Documents {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-32s %-8s chunks=%d indexed=%d", d.Name, d.Status, d.ChunkCount, d.IndexedCount)
		if d.Error != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s", d.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
}
