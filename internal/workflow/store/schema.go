package store

import _ "embed"

// Schema is the Postgres DDL for the workflow tables. Exposed so migrations
// and integration test containers apply the same definition the store expects.
//
//go:embed schema.sql
var Schema string
