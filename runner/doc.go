// Package runner executes declarative test cases against pooled drivers.
//
// The main components are:
//   - StepExecutor: invokes one bound step, classifies its outcome and applies retry
//   - CaseOrchestrator: runs the steps of one case in order and applies stop-on-error
//   - Coordinator: fans cases out to workers, each holding one pool entry per case
//   - RunResult: the case results of one run, keyed by case
//
// Screenshots and reporting are collaborators behind the Screenshotter and
// Reporter interfaces.
package runner
