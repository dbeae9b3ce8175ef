// Package main implements the brinystress CLI tool.
//
// brinystress hammers the briny primitives from many goroutines and checks
// their invariants online: writer exclusivity on cells, reference-counter
// conservation, and pool exhaustion/reuse behavior. It is a development
// harness, not part of the library surface.
//
// Usage:
//
//	brinystress run scenario.yaml    # Run the scenarios described in the file
//	brinystress run                  # Run the built-in default scenarios
//
// The process exits nonzero if any invariant violation is observed.
package main

import (
	"fmt"
	"os"

	"github.com/bobbothe2nd/briny"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		runCommand(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("brinystress version %s\n", briny.Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`brinystress - concurrency stress harness for the briny primitives

USAGE:
    brinystress <command> [arguments]

COMMANDS:
    run        Run stress scenarios (optionally from a yaml file)
    version    Show version information
    help       Show this help message

EXAMPLES:
    # Run the built-in default scenarios
    brinystress run

    # Run scenarios from a file
    brinystress run scenario.yaml

SCENARIO FILE:
    workers: 8           # concurrent goroutines per scenario
    iterations: 100000   # operations per goroutine
    pool_capacity: 64    # slot table size for the pool scenario
    spin_budget: 128     # retry bound for bounded acquisition forms
    scenarios: [cell, direct, pool]
`)
}
