// Package git provides the Git plumbing used by arcstack.
//
// Commands run through a Runner so they can be traced or scripted in tests.
// API wraps the porcelain calls the land and cascade flows need, while
// Repository reads branch tracking configuration directly with go-git.
//
// This package should be the only place where direct git commands are executed.
package git
