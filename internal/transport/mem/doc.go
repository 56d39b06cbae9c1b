// Package mem implements the transport capability in process memory. It
// backs the Local service type and the test suite: named channels with fixed
// buffer pools, refcounted fan-out to attached subscribers, and a
// notification channel per node for blocking waits.
//
// Ownership is tracked per sample (free, loaned, live) so that misuse such as
// double commit or releasing a sample twice is reported instead of corrupting
// the pool.
package mem
