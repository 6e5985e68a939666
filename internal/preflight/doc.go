// Package preflight provides readiness checks for the directories, binaries,
// and credentials a pipeline run depends on.
//
// The orchestrator calls RunAll before a run and logs failures as warnings;
// a missing dependency never aborts the run, it fails items individually.
// The doctor command additionally calls CheckImageAPI to verify the key
// against the live API.
package preflight
