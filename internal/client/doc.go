// Package client forwards line-oriented input over one stream connection.
//
// A session ends at input exhaustion or at an empty line read immediately
// after a newline-terminated line, whichever comes first. That empty line is
// never sent, so "hello\n\n" forwards only "hello\n".
package client
