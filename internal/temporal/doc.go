// Package temporal wires the review job pipeline onto the Temporal SDK.
//
// The package is split in three layers:
//
//   - this package: client construction (TLS, namespace, task queue), the
//     JobWorkflowClient wrapper used by the HTTP server to start, cancel,
//     signal, and query job workflows, and the worker lifecycle manager.
//     Workflow IDs derive deterministically from job IDs, so a second start
//     of the same job is rejected by the server rather than duplicated.
//
//   - workflows: the ReviewJobWorkflow state machine that drives a job
//     through searching, downloading, extracting, summarizing, and
//     generating. All non-deterministic work happens in activities; the
//     workflow only sequences futures and aggregates counters.
//
//   - activities: the side-effecting operations (OpenAlex search, PDF
//     download, text extraction, generation calls, status persistence,
//     event publication). Per-document activities are idempotent via
//     fill-once persistence so at-least-once execution is safe.
package temporal
