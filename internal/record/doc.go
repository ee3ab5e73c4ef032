// Package record defines the prompt record persisted by the pipeline.
//
// A record moves through exactly one transition: it is created pending when a
// generated prompt is stored and becomes completed once an image has been
// confirmed on disk. CompletedAt is set if and only if the status is
// completed.
//
// This package imports nothing internal so that the store, pipeline and CLI
// layers can all depend on it.
package record
