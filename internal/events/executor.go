// Package events defines the lifecycle events published on the event bus by
// the executor and its transports.
package events

import "time"

// ExecutorOpStart is emitted when an executor protocol operation begins.
type ExecutorOpStart struct {
	Op     string // CreateValue, CreateCall, CreateStruct, CreateSelection, Compute
	Device string
}

// ExecutorOpFinish is emitted after the operation completes.
type ExecutorOpFinish struct {
	Op       string
	Device   string
	Type     string // signature of the produced value, when one was produced
	Err      error
	Duration time.Duration
}
