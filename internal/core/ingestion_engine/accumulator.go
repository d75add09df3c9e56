package ingestion_engine

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/markdave123-py/Indexa/internal/models"
)

var stageOrder = []models.Stage{
	models.StageReceived,
	models.StageExtracting,
	models.StageChunking,
	models.StageEmbedding,
	models.StageAssembling,
	models.StageQueued,
	models.StageIndexed,
}

// accumulator collects one outcome per document. It is append-only and safe
// for concurrent use; each job owns its own instance.
type accumulator struct {
	mu        sync.Mutex
	jobID     string
	index     string
	startedAt time.Time
	outcomes  []models.DocumentOutcome
}

func newAccumulator(jobID, index string, capacity int) *accumulator {
	return &accumulator{
		jobID:     jobID,
		index:     index,
		startedAt: time.Now().UTC(),
		outcomes:  make([]models.DocumentOutcome, 0, capacity),
	}
}

func (a *accumulator) add(o models.DocumentOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes = append(a.outcomes, o)
}

// finish snapshots the outcomes in request order. fatal is the job-fatal error, if any.
func (a *accumulator) finish(fatal error) *models.JobResult {
	a.mu.Lock()
	docs := slices.Clone(a.outcomes)
	a.mu.Unlock()

	slices.SortFunc(docs, func(x, y models.DocumentOutcome) int { return cmp.Compare(x.Position, y.Position) })

	res := &models.JobResult{
		JobID:      a.jobID,
		IndexName:  a.index,
		Status:     jobStatus(docs, fatal),
		Documents:  docs,
		Counts:     countStages(docs),
		StartedAt:  a.startedAt,
		FinishedAt: time.Now().UTC(),
	}
	if fatal != nil {
		res.Error = fatal.Error()
	}
	return res
}

func jobStatus(docs []models.DocumentOutcome, fatal error) models.JobStatus {
	if fatal != nil {
		return models.JobFailed
	}
	indexed, progressed := 0, 0
	for _, d := range docs {
		switch d.Status {
		case models.DocumentIndexed:
			indexed++
			progressed++
		case models.DocumentPartial:
			progressed++
		}
	}
	switch {
	case indexed == len(docs):
		return models.JobCompleted
	case progressed > 0:
		return models.JobPartial
	}
	return models.JobFailed
}

// countStages counts, per stage, the documents that passed it and those that
// stopped there. A partial document passes every stage before its earliest
// chunk failure and counts as failed once at each stage where chunks failed.
func countStages(docs []models.DocumentOutcome) models.StageCounts {
	c := models.StageCounts{
		Succeeded: make(map[models.Stage]int, len(stageOrder)),
		Failed:    make(map[models.Stage]int),
	}
	for _, d := range docs {
		stop := len(stageOrder)
		switch d.Status {
		case models.DocumentFailed:
			stop = slices.Index(stageOrder, d.FailedStage)
			c.Failed[d.FailedStage]++
		case models.DocumentPartial:
			failed := make(map[models.Stage]bool)
			for _, f := range d.ChunkFailures {
				failed[f.Stage] = true
			}
			for i, s := range stageOrder {
				if failed[s] {
					stop = min(stop, i)
					c.Failed[s]++
				}
			}
		}
		for _, s := range stageOrder[:max(stop, 0)] {
			c.Succeeded[s]++
		}
	}
	return c
}
