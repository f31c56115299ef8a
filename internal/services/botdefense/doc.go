// Package botdefense screens public form submissions.
//
// Each check produces a Signal. The Pipeline runs the checks in a fixed
// order, stops at the first block, and otherwise rejects a submission whose
// summed suspicion reaches the configured threshold.
package botdefense
