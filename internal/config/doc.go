// Package config resolves arcstack settings.
//
// Settings are layered, later sources winning:
//   - built-in defaults
//   - the user config file (~/.arcstack/config.yaml or .json)
//   - the repository .arcconfig (JSON)
//   - .git/arclocalconfig (JSON)
//   - ARCSTACK_* environment variables
//
// Keys keep their arcanist spelling (for example "uber.land.submitqueue.uri"),
// so the viper key delimiter is "::" rather than ".". The Conduit token comes
// from ~/.arcrc.
package config
