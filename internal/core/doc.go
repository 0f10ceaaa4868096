// Package core implements the FlexiMart ETL pipeline.
//
// The package holds all data-engineering logic independent of storage and
// transport. It can be driven by the CLI, the HTTP server or tests without
// modification; storage is reached only through the [Store] port.
//
// # Stages
//
// A run moves through a fixed sequence of stages, each consuming the
// complete output of the previous one:
//
//  1. Extracting: [Extract] reads each raw CSV into immutable [RawRecord]s
//  2. Normalizing: [Normalizer] turns records into typed [Entity] values
//  3. Deduplicating: [Deduplicate] keeps one entity per natural key
//  4. ResolvingMissing: [Resolver] applies the drop/default/impute policies
//  5. AssigningKeys: [KeyMap] hands out surrogate keys in first-seen order
//  6. Loading: [Loader] writes customers, products, orders, order_items
//  7. Reporting: [Report] renders the per-source [QualityCounters]
//
// Any unrecoverable error moves the run to [StageFailed]; the quality report
// is still produced.
//
// # Entities
//
// [Customer], [Product], [Order] and [OrderItem] form a closed set of entity
// types sharing a [Base]. Typed fields use pgtype values, so a field is
// missing exactly when its Valid flag is false.
//
// # Error Handling
//
// Routine record rejections (malformed rows, duplicates, missing required
// fields, unresolved references) are [Rejection] values and never errors.
// Errors are reserved for conditions that halt the run and carry a [Kind]:
//
//   - malformed_input: unreadable input file
//   - integrity_violation: uniqueness or constraint failure of a whole batch
//   - storage_unavailable: transient storage failure after the retry budget
//   - schema_mismatch: an expected column is absent from a raw file
package core
