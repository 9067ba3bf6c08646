// Package cli implements the flick command-line interface.
//
// Scenarios are declarative YAML files validated against an embedded CUE
// schema and compiled into harness tests. The command tree:
//
//	flick run <scenario.yaml>       execute and evaluate a scenario
//	flick validate <scenario.yaml>  check a scenario without running it
//	flick report <results.db>       inspect recorded executions
//
// Output is text by default, JSON with --format json. Exit codes separate
// assertion failures (1) from command errors (2).
package cli
