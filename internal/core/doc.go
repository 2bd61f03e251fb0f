// Package core provides the business logic for spreadsheet ingestion and
// dataset queries.
//
// This package is the heart of the service, containing all domain logic
// independent of any transport layer. It can be used by web handlers, CLI
// tools, or tests without modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Rows: schemaless, order-preserving records ([Row]) whose shape may
//     differ row to row within one dataset.
//   - Normalization: [NormalizeRows] converts raw sheet cells plus header,
//     key and column configuration into rows.
//   - Scheduling: [Service.Upload] and [Service.Reprocess] run a request in
//     preview, sync or async mode; async work is tracked per import so the
//     same import is never processed twice concurrently.
//   - Storage: the [Store] interface isolates persistence; engines must
//     keep per-import row replacement atomic for readers.
//   - Queries: [ApplyQuery] evaluates a single field/operator/value
//     predicate, a sort and pagination over a dataset's rows.
//
// # Ingest Flow
//
//  1. The handler saves the upload into the temp area and calls
//     [Service.Upload] with the parsed [ProcessOptions].
//  2. The workbook is decoded sheet by sheet (internal/sheet).
//  3. preview samples every sheet and persists nothing; sync normalizes the
//     selected sheet and blocks until rows are stored; async stores
//     metadata, schedules a background job and returns.
//  4. Reprocessing the same file and sheet replaces that import's rows in
//     place; a new sheet of the same file appends a new import.
//
// # Error Handling
//
// Failures carry an [ErrorKind] so the transport layer can map them to
// statuses without string matching: validation, not_found, conflict,
// processing, expired_resource. Async job failures are recorded on the
// import and surface on the next dataset read.
package core
