// Package textutil holds the string helpers shared by the prompt builder,
// the run report, and the CLI.
package textutil
