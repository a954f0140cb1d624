// Package protocol owns the LEQ registration wire contract.
//
// Ownership boundary:
// - fixed 12-byte registration record layout
// - encode/decode primitives (network byte order)
// - semantic validation applied by registration consumers
package protocol
