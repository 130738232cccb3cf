// Package observability records board activity in an append-only JSON Lines
// event log and derives board metrics from it on demand.
package observability
