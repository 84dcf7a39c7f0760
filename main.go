package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jsconformance/contract-tests/expresstests"
	"github.com/jsconformance/contract-tests/framework"
	"github.com/jsconformance/contract-tests/pmtests"
)

const statusQueryTimeout = time.Second * 10

func main() {
	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	mainDebugLogger := framework.NullLogger()
	if params.debugAll {
		mainDebugLogger = log.New(os.Stdout, "", log.LstdFlags)
	}

	harness, err := framework.NewTestHarness(params.host, params.port, mainDebugLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Test harness error: %s\n", err)
		os.Exit(1)
	}
	defer harness.Close()

	testLogger := &ConsoleTestLogger{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}

	var results framework.Results

	if params.packageManager != "" {
		fmt.Println()
		framework.DescribeFilters(os.Stdout, params.filters)
		fmt.Printf("Running package manager suite against %s\n", params.packageManager)
		pmConfig := pmtests.Config{
			Path:    params.packageManager,
			Env:     params.pmEnv,
			Timeout: params.timeout,
		}
		results = results.Merge(pmtests.RunTestSuite(harness, pmConfig, params.filters.ForSuite(pmtests.SuiteName), testLogger))
	}

	if params.serviceURL != "" {
		if err := harness.ConnectTestService(params.serviceURL, statusQueryTimeout, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Test service error: %s\n", err)
			os.Exit(1)
		}
		fmt.Println()
		framework.DescribeFilters(os.Stdout, params.filters)
		framework.DescribeMissingCapabilities(os.Stdout, harness, expresstests.AllCapabilities)
		fmt.Println("Running Express conformance suite")
		results = results.Merge(expresstests.RunTestSuite(harness, params.filters.ForSuite(expresstests.SuiteName), testLogger))

		if params.stopServiceAtEnd {
			fmt.Println("Stopping test service")
			if err := harness.StopService(); err != nil {
				fmt.Fprintf(os.Stderr, "Error when stopping test service: %s\n", err)
			}
		}
	}

	fmt.Println()
	framework.PrintResults(results)
	if !results.OK() {
		harness.Close()
		os.Exit(1)
	}
}
