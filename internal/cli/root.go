// Package cli is the indexctl command line: batch ingestion, index
// provisioning and hybrid search against the configured backends.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/Indexa/internal/models"
	"github.com/markdave123-py/Indexa/internal/services"
)

// JobSubmitter runs an ingestion job.
type JobSubmitter interface {
	Submit(ctx context.Context, index string, uploads []services.Upload) (*models.JobResult, error)
}

// Searcher runs a hybrid query.
type Searcher interface {
	Search(ctx context.Context, index, text string, top int) ([]models.SearchHit, error)
}

// IndexEnsurer provisions an index.
type IndexEnsurer interface {
	EnsureIndex(ctx context.Context, name string, vectorDimension int) error
}

// Services are the components commands operate on.
type Services struct {
	Jobs            JobSubmitter
	Search          Searcher
	Schemas         IndexEnsurer
	VectorDimension int
}

var (
	svc *Services

	// Setup builds the services on first use; main installs it.
	Setup func(ctx context.Context) (*Services, func(), error)

	teardown func()
)

var rootCmd = &cobra.Command{
	Use:   "indexctl",
	Short: "Ingest documents into hybrid-search indexes",
	Long: `indexctl chunks, embeds and indexes local documents using the same
pipeline as the Indexa API, and queries the resulting indexes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if svc != nil || Setup == nil {
			return nil
		}
		s, closeFn, err := Setup(cmd.Context())
		if err != nil {
			return err
		}
		svc, teardown = s, closeFn
		return nil
	},
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	defer func() {
		if teardown != nil {
			teardown()
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func loadServices() (*Services, error) {
	if svc == nil {
		return nil, errors.New("services not configured")
	}
	return svc, nil
}
