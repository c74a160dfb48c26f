// Package core implements the dependency-aware loader/dumper engine that
// moves relational business records between two instances of an external
// record-management service.
//
// This package has no transport, UI, or CLI dependencies. It talks to the
// remote service only through the [SchemaClient] and [DataClient]
// interfaces, and can be driven by a CLI, a test, or any other caller.
//
// # Architecture
//
//   - Namespace utilities (nsutil.go): case-insensitive, namespace-tolerant
//     lookup of object/field names.
//   - Describer (describe.go): fetches per-object schema once, at
//     construction, and caches it.
//   - Mapping-policy resolver (mapping.go): seeds the initial ID-translation
//     map from business keys and default mappings.
//   - Row classifier (classify.go): partitions dataset rows into
//     uploadable / waiting / blocked / already-mapped.
//   - Row converter (convert.go): coerces CSV cells into typed field values
//     and rewrites reference cells through the ID map.
//   - Upload driver (load.go): the fixpoint loop that repeatedly classifies,
//     converts, submits batches, and merges new IDs until nothing more can
//     be uploaded.
//   - Dump driver (dump.go): walks the reference graph outward from seed
//     queries until closure, alternating dependent and related expansion.
//   - Facade (facade.go): [Load] and [Dump], the two public entry points.
//     Each builds its own [Describer] before handing off to the
//     lower-level [LoadCSVData] / [DumpAsCSV] fixpoint drivers, which
//     remain exported for callers that already have a Describer.
//
// # Fixpoint
//
// Both drivers run to a fixpoint: the upload driver stops when a full pass
// produces no new uploadable row, the dump driver stops when a full round
// of related/dependent expansion adds no new record. Progress is reported
// to the caller between passes/phases via a synchronous callback; there is
// no other global state.
//
// # Cycles
//
// Strongly-connected components in the reference graph that are not broken
// by a seeded ID map entry or a mapping policy can never become uploadable;
// they end up in UploadStatus.Blocked forever. This is a deliberate limit,
// not a bug: the engine never attempts to split a cycle automatically.
package core
