// Package aptest boots a local Aptos validator, publishes the Move package
// in the current project against it and runs the project's end-to-end tests.
package aptest

// Version is the aptest release version.
const Version = "v0.3.0"
