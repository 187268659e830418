// Package workload drives reactive runtimes from scripts and synthetic
// loads.
//
// # Scenarios
//
// A scenario is a YAML file declaring an initial state tree, the effects,
// computeds and watchers observing it, and the steps that mutate it.
// Sources are dotted paths into the state ("user.tags.0"), "ref:<name>",
// "computed:<name>" or "state" for the whole tree:
//
//	name: counter
//	state:
//	  count: 0
//	effects:
//	  - name: render
//	    reads: [count]
//	watchers:
//	  - name: log
//	    sources: [count]
//	steps:
//	  - set: {path: count, value: 1}
//	  - flush: true
//	  - expect:
//	      runs: {render: 2, log: 1}
//
// Runner.Run executes a scenario on a fresh runtime and returns a Result
// whose Trace records every step, run and flush.
//
// # Bench
//
// Runner.Bench measures the fanout, chain, watch and array workloads under
// one of the built-in profiles (fast, standard, stress). Results are
// collected into a Report, which a Sink stores as JSON in a directory
// (DirSink) or an S3 bucket (S3Uploader).
package workload
