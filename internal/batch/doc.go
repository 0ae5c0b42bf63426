// Package batch drives one sequential run over a list of notes: for each
// note it builds the prompt, calls the configured text provider, applies the
// response mapping, optionally generates images and audio, and persists the
// note, reporting progress and conflicts to the caller through channels.
// Exactly one worker goroutine runs per Processor; cancellation is honored
// at note boundaries, never mid-call.
package batch
