// Package harness runs workflow scenarios and checks what they produced.
//
// A scenario names a workflow, the inputs to enqueue and what the run must
// leave behind. The harness builds the workflow on a fresh App, records every
// produced record in an in-memory audit store and evaluates the scenario's
// expectations against the stored trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: loop
//	description: "Switch routes by trail length until c.. is reached"
//	workflow: ../workflows/loop.cue
//	inputs:
//	  - node: a
//	    values: [""]
//	expect:
//	  terminal:
//	    c..: ["abcab.c.."]
//	assertions:
//	  - type: trace_order
//	    nodes: [a, b, c]
//	  - type: trace_count
//	    node: a
//	    count: 2
//
// The workflow path is resolved relative to the scenario file. A workflow
// can also be written inline under "definition", in the YAML workflow
// format.
//
// # Assertion Types
//
//   - trace_contains: some record produced by node (with value, if given)
//   - trace_order: nodes first produce records in the listed order
//   - trace_count: node produced exactly count records
//   - trail: the first terminal record of node has the listed trail values
//
// # Deterministic Testing
//
// Every run uses a fixed cycle token ("test-cycle" unless the scenario sets
// one) and deterministic clocks, so traces are identical across runs and can
// be compared against golden files with RunWithGolden.
package harness
