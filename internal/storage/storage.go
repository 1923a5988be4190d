package storage

// Tx is the transaction handle the service drives. *sql.Tx satisfies it
// directly; tests substitute a no-op implementation.
type Tx interface {
	Commit() error
	Rollback() error
}
