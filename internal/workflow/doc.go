// Package workflow loads workflow definitions and builds them into task
// graphs on an engine.App.
//
// A workflow file holds a single top-level `workflow` field, written either
// in CUE or as the same structure in YAML:
//
//	workflow: {
//		name: "demo"
//		nodes: [
//			{name: "a", type: "append"},
//			{name: "b", type: "append", batch: 3},
//		]
//		joins: [
//			{kind: "sequence", nodes: ["a", "b"]},
//		]
//	}
//
// Both formats are unified with the embedded CUE schema (schema.cue) before
// decoding, so structural errors carry the same messages in either format.
// Validate then checks cross references the schema cannot express, and Build
// creates the tasks and joins.
package workflow
