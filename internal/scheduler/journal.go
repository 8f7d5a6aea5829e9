package scheduler

import (
	"context"
	"time"

	"veobatch/internal/domain"
	"veobatch/internal/infra"
)

// JournalListener mirrors every change into journal. Jobs cleared by Reset
// stay journaled as history. Write failures are logged and never affect the
// run.
func JournalListener(ctx context.Context, journal domain.JobJournal, log infra.Logger) Listener {
	return func(change Change) {
		if change.Cleared {
			return
		}
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var err error
		if change.Removed {
			err = journal.Delete(writeCtx, change.Job.ID)
		} else {
			err = journal.Save(writeCtx, change.Job)
		}
		if err != nil {
			log.Warn().Err(err).Str("job_id", change.Job.ID).Msg("scheduler: journal write failed")
		}
	}
}
