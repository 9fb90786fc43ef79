package async

import (
	"context"

	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

// SubmitFunc hands one accumulated batch to the orchestrator.
type SubmitFunc func(ctx context.Context, srcs []entity.Source) error

type Queue interface {
	Enqueue(ctx context.Context, src entity.Source) error
	Shutdown(ctx context.Context)
}
