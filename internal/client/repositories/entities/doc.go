// Package entities persists mutable domain entities in per-type SQLite
// tables. Rows are type-agnostic: the domain record is kept as a JSON
// document in the data column and the sync-control attributes live in their
// own columns, so the store, the synchronizer and the conflict resolver can
// work on any entity type through the same repository.
//
// Searchable and unique fields are read with json_extract. Searches are
// case-insensitive for ASCII letters and return rows in storage (rowid)
// order.
package entities
