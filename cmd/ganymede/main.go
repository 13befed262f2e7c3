// Ganymede is a policy decision engine for delivery pipelines.
//
// It tracks pipeline runs through a staged lifecycle, governs stage
// transitions with a declarative rule set, manages ephemeral
// environments with TTL and quota enforcement, rate-limits gated
// actions with token buckets, and records every admit and deny in a
// tamper-evident decision log.
//
// Usage:
//
//	# Start the engine with the default configuration
//	ganymede run
//
//	# Start with a configuration file
//	ganymede run --config /etc/ganymede/config.yaml
//
//	# Validate rule files
//	ganymede rules validate --file gates.yaml
//
//	# Query the decision log
//	ganymede decisions query --outcome deny --limit 20
//
//	# Verify the decision log hash chain
//	ganymede decisions verify
//
//	# Show version information
//	ganymede version
package main

func main() {
	Execute()
}
