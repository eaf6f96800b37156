// Package store persists paper metadata and pipeline state in SQLite.
//
// The papers table is the pipeline's source of truth. Intake upserts
// metadata without ever touching an existing row's status, stage handlers
// advance status with atomic partial updates, and intake consults the
// processed/in-progress status sets to keep reruns idempotent.
package store
