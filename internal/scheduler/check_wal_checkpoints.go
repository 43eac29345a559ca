package scheduler

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/tunefolio/internal/database"
)

// walFrameLimit is the WAL size, in frames, above which a passive
// checkpoint is followed by a RESTART checkpoint
const walFrameLimit = 1000

// WALStatus is the outcome of a passive checkpoint on one database
type WALStatus struct {
	Database     string `json:"database"`
	Busy         bool   `json:"busy"`
	Frames       int    `json:"frames"`
	Checkpointed int    `json:"checkpointed"`
	Restarted    bool   `json:"restarted"`
}

// CheckWALCheckpointsJob checkpoints the WAL of every SQLite database
type CheckWALCheckpointsJob struct {
	log       zerolog.Logger
	databases []*database.DB
}

// NewCheckWALCheckpointsJob creates a new CheckWALCheckpointsJob. Nil databases are ignored.
func NewCheckWALCheckpointsJob(log zerolog.Logger, databases ...*database.DB) *CheckWALCheckpointsJob {
	dbs := make([]*database.DB, 0, len(databases))
	for _, db := range databases {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	sort.Slice(dbs, func(i, j int) bool { return dbs[i].Name() < dbs[j].Name() })

	return &CheckWALCheckpointsJob{
		log:       log.With().Str("job", "check_wal_checkpoints").Logger(),
		databases: dbs,
	}
}

// Name returns the job name
func (j *CheckWALCheckpointsJob) Name() string {
	return "check_wal_checkpoints"
}

// Run checkpoints every database. It fails only when no database could be checked.
func (j *CheckWALCheckpointsJob) Run() error {
	statuses, failed := j.Check()

	j.log.Info().
		Int("checked", len(statuses)).
		Int("failed", failed).
		Msg("WAL checkpoint check completed")

	if failed > 0 && len(statuses) == 0 {
		return fmt.Errorf("WAL checkpoint failed on all %d databases", failed)
	}
	return nil
}

// Check runs a passive checkpoint on each database and restarts the WAL of
// those that have grown past walFrameLimit.
func (j *CheckWALCheckpointsJob) Check() ([]WALStatus, int) {
	statuses := make([]WALStatus, 0, len(j.databases))
	failed := 0

	for _, db := range j.databases {
		status := WALStatus{Database: db.Name()}

		// PRAGMA wal_checkpoint returns: busy, log, checkpointed
		var busy int
		err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &status.Frames, &status.Checkpointed)
		if err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to check WAL checkpoint")
			failed++
			continue
		}
		status.Busy = busy != 0

		if status.Frames > walFrameLimit && !status.Busy {
			if err := db.WALCheckpoint("RESTART"); err != nil {
				j.log.Warn().Err(err).Str("database", db.Name()).Int("wal_frames", status.Frames).Msg("WAL restart failed")
			} else {
				status.Restarted = true
			}
		}

		j.log.Debug().
			Str("database", db.Name()).
			Int("wal_frames", status.Frames).
			Int("checkpointed", status.Checkpointed).
			Bool("restarted", status.Restarted).
			Msg("WAL checkpoint status")

		statuses = append(statuses, status)
	}

	return statuses, failed
}
