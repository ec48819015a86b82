// Package lifecycle enforces the task status workflow.
//
// Service is the only writer of tasks. Creation inserts the task and its
// first history entry in one transaction; updates re-read the task inside a
// transaction, check the requested transition against the current row, merge
// the supplied fields and append a history entry when the status actually
// changes. Failures inside a transaction come back as a single
// *domain.TransactionError whose cause stays reachable with errors.As.
package lifecycle
