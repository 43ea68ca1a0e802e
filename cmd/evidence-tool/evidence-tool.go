// Copyright 2024 the evidence-api authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Binary evidence-tool inspects collected measured-boot evidence: it dumps
// the parsed event records of a saved log and replays them into the final
// per-register digests a verifier would compare against.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sahason/evidence-api/eventlog"
)

var (
	eventLogPath = flag.String("eventlog", "", "Path to the binary TCG event log")
	imaLogPath   = flag.String("ima-log", "", "Path to the ASCII IMA measurement log (optional)")
	start        = flag.Uint("start", 0, "First record to dump (dump command)")
	count        = flag.Uint("count", 0, "Number of records to dump, 0 for all (dump command)")
)

func main() {
	flag.Parse()

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string) error {
	if *eventLogPath == "" {
		return fmt.Errorf("no event log specified, use -eventlog")
	}
	bootTimeData, err := os.ReadFile(*eventLogPath)
	if err != nil {
		return fmt.Errorf("reading event log: %v", err)
	}

	var runTimeData []string
	if *imaLogPath != "" {
		raw, err := os.ReadFile(*imaLogPath)
		if err != nil {
			return fmt.Errorf("reading IMA log: %v", err)
		}
		for _, line := range strings.Split(string(raw), "\n") {
			if strings.TrimSpace(line) != "" {
				runTimeData = append(runTimeData, line)
			}
		}
	}

	log := eventlog.New(bootTimeData, runTimeData, eventlog.FormatPCClient)

	switch command {
	case "dump":
		return dumpEvents(log)
	case "replay":
		return replayEvents(log)
	default:
		return fmt.Errorf("unknown command %q, expected dump or replay", command)
	}
}

func dumpEvents(log *eventlog.EventLog) error {
	var startArg, countArg *uint32
	if *start > 0 {
		v := uint32(*start)
		startArg = &v
	}
	if *count > 0 {
		v := uint32(*count)
		countArg = &v
	}
	records, err := log.Select(startArg, countArg)
	if err != nil {
		return err
	}
	for _, rec := range records {
		fmt.Println(rec)
	}
	return nil
}

func replayEvents(log *eventlog.EventLog) error {
	records, err := log.Select(nil, nil)
	if err != nil {
		return err
	}
	results, err := eventlog.Replay(records)
	if err != nil {
		return err
	}
	for _, res := range results {
		fmt.Println(res)
	}
	return nil
}
