// Package tool defines the tool catalog and the dispatch boundary between the
// protocol engine and tool implementations.
//
// The package is split by concern:
//   - registry: immutable descriptors and the name → handler catalog
//   - schema: input schemas and the single conformance check
//   - dispatcher: lookup, validation, invocation, and content synthesis
//   - error: the explicit collaborator failure value and its content mapping
//   - observability: process-wide call observer hook
//
// Nothing in this package returns a Go error for tool-level problems once a
// call has been dispatched; unknown tools, bad arguments and collaborator
// failures all become Text content.
package tool
