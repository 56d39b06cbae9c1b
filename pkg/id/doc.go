// Package id generates compact, lexicographically sortable tracking
// identifiers. The transports stamp every committed sample with one so that
// deliveries can be correlated across endpoints in logs and diagnostics
// without coordinating a shared counter.
package id
