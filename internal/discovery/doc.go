// Package discovery announces LEQ services on the local broadcast domain and
// listens for those announcements.
//
// The Registrar sends exactly one registration datagram per call and never
// waits for a reply. The Monitor is the passive intake side: it decodes,
// validates and de-duplicates registrations but does not acknowledge them.
package discovery
