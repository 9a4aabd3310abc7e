package logging

import (
	"fmt"
	"log/slog"
)

// WithTxn creates a logger with transaction context.
//
// Example:
//
//	log := logging.WithTxn(txn.ID())
//	log.Info("beginning transaction")
func WithTxn(txnID int64) *slog.Logger {
	return GetLogger().With("txn_id", txnID)
}

// WithObject creates a logger with object context.
//
// Example:
//
//	log := logging.WithObject(id)
//	log.Debug("cache hit")
func WithObject(id fmt.Stringer) *slog.Logger {
	return GetLogger().With("object_id", id.String())
}

// WithLock creates a logger with lock context: which transaction, on which
// object.
//
// Example:
//
//	log := logging.WithLock(txnID, objectID)
//	log.Info("lock acquired")
func WithLock(txnID int64, id fmt.Stringer) *slog.Logger {
	return GetLogger().With("txn_id", txnID, "object_id", id.String())
}

// WithComponent creates a logger with component/subsystem context, one of
// "lock", "cache", "store", "backing", "txn".
//
// Example:
//
//	log := logging.WithComponent("cache")
//	log.Info("evicting entry", "object_id", id)
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Error("commit failed")
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
