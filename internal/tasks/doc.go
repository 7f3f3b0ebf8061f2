// Package tasks provides the built-in task types and switch selectors that
// workflow definitions refer to by name.
//
// A Registry maps type names to a process function plus the configuration
// schema its tasks are created with. Default returns a registry holding:
//
//	identity  pass the first input through
//	append    append a suffix (default: the executing node's display name)
//	concat    join inputs as strings with sep
//	sum       add numeric inputs, flattening arrays
//	split     split a string on sep
//	count     length of an array input
//	fail      always fail with message
//
// and the selectors value and trail_length.
package tasks
