// Package metrics collects Prometheus metrics for batch runs.
//
// Runs are short-lived CLI processes, so metrics live on a private registry and
// are written once at the end with WriteTextfile for the node exporter textfile
// collector instead of being scraped.
package metrics
