// Package db embeds the database schema.
package db

import _ "embed"

// Schema creates the menu and order tables.
//
//go:embed migrations/001_schema.sql
var Schema string
