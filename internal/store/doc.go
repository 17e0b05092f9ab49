// Package store is the record store client: a SQLite handle shared by every
// controller for the life of the process.
//
// # Transactions
//
// A transaction is carried in the context. Every Client method looks for
// one and, when present, runs on it instead of the pool; RunInTx joins an
// outer transaction rather than nesting. Beginning a transaction is retried
// exactly once when SQLite reports the database busy or locked. Nothing
// else is retried here.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout: configurable, default 5000ms
//   - foreign_keys=ON
//   - _txlock=immediate: BEGIN takes the write lock up front, so contention
//     surfaces at acquisition rather than mid-transaction
//
// # Errors
//
// Driver errors are classified into ErrUnavailable, ErrBusy and ErrConflict
// (wrapped, so errors.Is works and the driver error stays reachable).
package store
