// Package health holds the liveness and readiness probes served on the admin
// listener.
//
// Probes compose with [All] and [Any]. [WebRoot] fails while the web root is
// missing or not a directory, and [ShutdownGate] fails once draining starts
// so load balancers stop routing before the tenant listener closes.
package health
