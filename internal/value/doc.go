// Package value holds the value entity: its type, request validation and
// SQLite persistence.
//
// A value is a named number. IDs are ULIDs so they sort by creation time.
// Validation is explicit: handlers call ValidateCreate or ValidateUpdate on
// the decoded request fields and act on the typed result before touching
// the Repository.
package value
