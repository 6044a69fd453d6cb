// Package progress streams run progress to observers without ever blocking the worker.
//
// A Reporter turns phase updates into Event values and hands them to a Sink.
// Percentages are clamped to [0, 100] and never move backwards within a phase.
// Stage maps a phase-local fraction into a window of the overall run
// (for example prefetch 5..40, insert 45..95) so one run can be shown as a
// single bar.
//
// # Sinks
//
//   - ChannelSink: buffered channel; events are dropped (and counted) when the
//     consumer falls behind.
//   - Status: keeps the latest event for polling.
//   - Multi: fans out to several sinks.
//
// Sink errors are logged by the Reporter and never returned to the worker.
package progress
