// Package cli provides command-line interface setup for the autoanki
// listener. It handles flag parsing and command creation using cobra.
package cli
