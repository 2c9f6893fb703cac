package ingest

// Status is the outcome of one batch.
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
)

// BatchResult records what one batch did.
type BatchResult struct {
	Spec         BatchSpec
	Query        string
	Status       Status
	ColumnsAdded int
	RowsInserted int
	RowsFailed   int
	Err          error
}

// Report summarizes a run.
type Report struct {
	RunID   string
	Batches []BatchResult
	// Columns is the table column list at the end of the run.
	Columns []string
}

// Done counts completed batches.
func (r *Report) Done() int { return r.count(StatusDone) }

// Skipped counts abandoned batches, including a fatal last one.
func (r *Report) Skipped() int { return r.count(StatusSkipped) }

func (r *Report) count(s Status) int {
	n := 0
	for _, b := range r.Batches {
		if b.Status == s {
			n++
		}
	}
	return n
}

// RowsInserted sums the inserted rows of all batches.
func (r *Report) RowsInserted() int {
	n := 0
	for _, b := range r.Batches {
		n += b.RowsInserted
	}
	return n
}

// RowsFailed sums the rows of all batches that could not be stored.
func (r *Report) RowsFailed() int {
	n := 0
	for _, b := range r.Batches {
		n += b.RowsFailed
	}
	return n
}
