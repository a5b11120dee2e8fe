package resultdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgallion1/standoffalign/internal/pipeline"
)

// RunSink writes the results of one run, batching inserts into
// transactions. Finish must be called to flush the last batch.
type RunSink struct {
	db    *sql.DB
	runID string

	tx      *sql.Tx
	stmt    *sql.Stmt
	pending int
}

var _ pipeline.Sink = (*RunSink)(nil)

// RunID returns the run the sink writes to.
func (s *RunSink) RunID() string {
	return s.runID
}

func (s *RunSink) Emit(r pipeline.Result) error {
	if s.tx == nil {
		if err := s.begin(); err != nil {
			return err
		}
	}
	_, err := s.stmt.Exec(s.runID, r.Line, string(r.Side), r.URL, r.Sentence, string(r.Status),
		r.Block, r.Offset, r.Standoff, r.Reason)
	if err != nil {
		return fmt.Errorf("insert result line %d: %w", r.Line, err)
	}
	s.pending++
	if s.pending >= batchSize {
		return s.commit()
	}
	return nil
}

// Finish flushes pending results and stores the run summary.
func (s *RunSink) Finish(stats pipeline.Stats) error {
	if err := s.commit(); err != nil {
		return err
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	_, err = s.db.Exec(`UPDATE runs SET finished_at = ?, records = ?, stats_json = ? WHERE id = ?`,
		time.Now().UTC().Format(timeFormat), stats.Records, string(data), s.runID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", s.runID, err)
	}
	return nil
}

// Abort discards results not yet committed.
func (s *RunSink) Abort() error {
	if s.tx == nil {
		return nil
	}
	err := errors.Join(s.stmt.Close(), s.tx.Rollback())
	s.tx, s.stmt, s.pending = nil, nil, 0
	return err
}

func (s *RunSink) begin() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin results: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO results
		(run_id, line, side, url, sentence, status, block_index, block_offset, standoff, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare results: %w", err)
	}
	s.tx, s.stmt = tx, stmt
	return nil
}

func (s *RunSink) commit() error {
	if s.tx == nil {
		return nil
	}
	s.stmt.Close()
	err := s.tx.Commit()
	s.tx, s.stmt, s.pending = nil, nil, 0
	if err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}
