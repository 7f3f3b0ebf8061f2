// Package audit tracks the lineage of every value that flows through a workflow.
//
// A Record is a (producer, value, parents) triple. Records form a DAG rooted at
// external inputs (records without parents). Every node invocation creates one
// new record whose parents are the records it consumed, so walking parents
// reconstructs how a value came to be.
//
// Records are immutable once created. Joins may hold the same record in several
// places at once (a fork hands one record to every target), which is safe
// because nothing mutates it.
//
// Two constructors shape lineage beyond the one-input-one-output case:
//
//   - SplitAsArray fans one array-valued record out into one keyed record per
//     element, each pointing back at the array record.
//   - Merge fans several records in; the merged value is the ordered list of
//     input values and parents keep the same order.
package audit
