// Package storage persists the federation registry and the approver
// allow-list behind the Store interface.
//
// Two drivers exist: "sqlite" (modernc.org/sqlite, WAL, embedded schema)
// for deployments, and "file" (atomic JSON snapshot) for minimal setups
// and tests. Both preserve registration order in ListFederations, which
// broadcast iteration relies on.
package storage
