// Package join wires task completions to new work items.
//
// A join subscribes to the completion of its source tasks and enqueues its
// target tasks on the engine. Six variants exist:
//
//	Sequence   a -> b -> c
//	Fork       a -> b, c, ...
//	Merge      any of a, b, ... -> c
//	SyncMerge  all of a, b, ... -> c (one merged record)
//	Switch     a -> one of b, c, ... chosen per record
//	Gate       a ... -> b (buffered until the queue settles)
//
// Joins never run work themselves, except Gate, which owns a task of its own.
package join
