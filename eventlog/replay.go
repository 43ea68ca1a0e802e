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

package eventlog

import (
	"errors"
	"fmt"

	"github.com/sahason/evidence-api/tcg"
)

// ErrCanonicalReplay reports that a canonical-format record was encountered
// during replay. Replaying those is not implemented; the caller must treat
// the log as unsupported, not as verified.
var ErrCanonicalReplay = errors.New("eventlog: replay of canonical event records is not supported")

// ReplayResult carries the recomputed final digests for one measurement
// register: one running digest per algorithm actually observed and evaluated
// for that register. An algorithm with no bound hash function leaves no
// entry, so absence always means "not evaluated", never "matched".
type ReplayResult struct {
	Register uint32
	Digests  []tcg.Digest
}

// Replay walks the records in order and simulates the hardware extend
// operation for every digest they carry, starting each register's running
// value from the all-zero reset value of its algorithm. The record order is
// load-bearing: reordering changes every subsequent digest in the chain.
//
// The result is what a verifier compares, byte for byte per algorithm,
// against the attester-reported register values.
func Replay(records []Record) ([]ReplayResult, error) {
	var results []ReplayResult

	for i, r := range records {
		switch ev := r.(type) {
		case *HeaderEvent:
			// Parser context only; extends nothing.
		case *CanonicalEvent:
			return nil, fmt.Errorf("record %d: %w", i, ErrCanonicalReplay)
		case *StandardEvent:
			if ev.Type == tcg.NoAction {
				continue
			}
			for _, d := range ev.Digests {
				h, err := d.Alg.CryptoHash()
				if err != nil {
					// Digest stored under an algorithm we cannot compute.
					// Tolerated: the rest of the replay is still meaningful.
					continue
				}
				size, _ := d.Alg.DigestSize()

				res := resultFor(&results, ev.Register)
				running := runningDigest(res, d.Alg, size)

				hasher := h.New()
				hasher.Write(running.Hash)
				hasher.Write(d.Hash)
				running.Hash = hasher.Sum(nil)
			}
		default:
			return nil, fmt.Errorf("record %d has unknown type %T", i, r)
		}
	}
	return results, nil
}

// resultFor finds the result entry for a register, appending a fresh one the
// first time the register is seen.
func resultFor(results *[]ReplayResult, register uint32) *ReplayResult {
	for i := range *results {
		if (*results)[i].Register == register {
			return &(*results)[i]
		}
	}
	*results = append(*results, ReplayResult{Register: register})
	return &(*results)[len(*results)-1]
}

// runningDigest finds the running digest for an algorithm within a register's
// result, seeding it with the register's all-zero reset value on first use.
func runningDigest(res *ReplayResult, alg tcg.Algorithm, size int) *tcg.Digest {
	for i := range res.Digests {
		if res.Digests[i].Alg == alg {
			return &res.Digests[i]
		}
	}
	res.Digests = append(res.Digests, tcg.Digest{Alg: alg, Hash: make([]byte, size)})
	return &res.Digests[len(res.Digests)-1]
}
