// Package runtime wires storage, configuration, and the stream
// directory into one handle shared by the CLI and tests.
package runtime
