// Package responders provides the response callbacks a feed can be wired
// with: a built-in echo responder and a goja-backed JavaScript responder, all
// reachable through a name-keyed registry.
package responders
