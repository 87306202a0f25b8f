// Package runtime provides the execution context for arcstack commands.
//
// It resolves the repository, loads layered settings and builds the shared
// collaborators (git API, review client, submit queue client, diff cache and
// logger) that commands hand to the engines.
package runtime
