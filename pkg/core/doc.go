// Package core defines the shared language of the rqg release quality gate.
//
// This package contains:
//   - Domain entities (Run, TestResult, FailureCluster, FlakeScore)
//   - Evidence and decision types (NewClusterEvidence, DecisionRecord)
//   - Service interfaces (HistoryStore)
//   - Policy configuration types (PolicyConfig)
//   - Error kinds shared by every layer
//
// The Golden Rule: pkg/core imports ONLY the standard library.
// All other packages depend on core, not the reverse.
package core
