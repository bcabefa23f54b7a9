package factdb

import "errors"

// Close commits pending writes and releases the backend. Calling Close
// again is a no-op; every other operation then returns ErrClosed.
//
// The backend is released even if the final commit fails.
func (db *DB) Close() error {
	if db == nil || db.closed.Swap(true) {
		return nil
	}
	err := errors.Join(db.commit(), db.store.Close())
	db.logger.LogClose(err)
	return err
}
