// Package beanpipe provides a set of composable plugins for validating and
// enriching a ledger of double-entry accounting directives. It is designed to
// be local-first and auditable: plugins consume an in-memory directive stream
// and return the same stream enriched with metadata, together with a list of
// diagnostics, leaving the host tool in full control of error reporting.
//
// The core functionalities include:
//   - Transfer Matching: Identifying which outbound and inbound postings
//     represent the two sides of a single real-world transfer, pairing them
//     deterministically, and annotating both sides with shared correlation
//     metadata.
//   - Tag Plugins: Promoting posting-level tags to the transaction level, and
//     validating transaction tags against a controlled vocabulary.
//   - Metadata Validation: Enforcing a typed metadata schema across directive
//     types.
//   - Data Persistence: Encoding and decoding directives to and from a
//     human-readable, version-controllable JSONL format.
//
// This package serves as the foundational logic for the `bpipe` command-line
// tool, ensuring that all operations are consistent and based on a single
// source of truth.
package beanpipe
