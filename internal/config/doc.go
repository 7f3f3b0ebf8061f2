// Package config declares and resolves per-node configuration.
//
// A Schema is built once per node type with the builder methods (String, Int,
// Float, Bool, Strings, Any). Resolve checks a raw key/value map against it,
// coerces each value to the declared kind, fills defaults, and applies any
// validator rule tags. The result is an immutable Values.
//
//	schema := config.NewSchema("gate").
//		Int("limit", 0, config.Rules("gte=0"), config.Desc("records per flush"))
//	values, err := schema.Resolve(map[string]any{"limit": 5})
//
// All problems are reported as *ConfigurationError before a workflow runs.
package config
