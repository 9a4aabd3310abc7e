// Package store is the top-level façade described in spec §6: given a
// Backing Store Adapter and configuration, it constructs the process-wide
// Shared Cache and Lock Manager exactly once and hands out Transaction
// Contexts through Begin.
//
// Grounded on StoreMy's pkg/database.Database: a single top-level struct
// that owns the process-wide collaborators (there PageStore/CatalogManager/
// WAL, here SharedCache/Lock Manager/Registry), constructed by a factory
// function, exposing aggregate statistics the way Database exposes
// DatabaseStats.
package store
