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

// Package tcg models the TCG data structures shared by the measured-boot
// event log parsers: hash algorithm identifiers, tagged digests, event types
// and the EFI Spec ID header.
package tcg

import (
	"crypto"
	"fmt"

	// Ensure hashes are available.
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/google/go-tpm/tpm2"
)

// Algorithm is a TPM 2.0 hash algorithm identifier. See the TPM 2.0
// specification section 6.3.
//
// https://trustedcomputinggroup.org/wp-content/uploads/TPM-Rev-2.0-Part-2-Structures-01.38.pdf#page=42
type Algorithm uint16

// AlgError (TPM_ALG_ERROR) tags digests whose algorithm is not recorded,
// such as the fixed SHA-1 field of the log header.
const AlgError Algorithm = 0x0000

// Algorithm identifiers used by event logs.
var (
	AlgSHA1   = Algorithm(tpm2.AlgSHA1)
	AlgSHA256 = Algorithm(tpm2.AlgSHA256)
	AlgSHA384 = Algorithm(tpm2.AlgSHA384)
	AlgSHA512 = Algorithm(tpm2.AlgSHA512)
)

var digestSizes = map[Algorithm]int{
	AlgSHA1:   crypto.SHA1.Size(),
	AlgSHA256: crypto.SHA256.Size(),
	AlgSHA384: crypto.SHA384.Size(),
	AlgSHA512: crypto.SHA512.Size(),
}

var algorithmNames = map[Algorithm]string{
	AlgError:  "TPM_ALG_ERROR",
	AlgSHA1:   "TPM_ALG_SHA1",
	AlgSHA256: "TPM_ALG_SHA256",
	AlgSHA384: "TPM_ALG_SHA384",
	AlgSHA512: "TPM_ALG_SHA512",
}

// DigestSize returns the byte length of digests produced by the algorithm,
// and whether the algorithm is part of the registry at all.
func (a Algorithm) DigestSize() (int, bool) {
	size, ok := digestSizes[a]
	return size, ok
}

// CryptoHash returns the hash function bound to the algorithm. Algorithms can
// legally appear in a log without a bound hash function; such digests can be
// stored but not recomputed.
func (a Algorithm) CryptoHash() (crypto.Hash, error) {
	switch tpm2.Algorithm(a) {
	case tpm2.AlgSHA1:
		return crypto.SHA1, nil
	case tpm2.AlgSHA256:
		return crypto.SHA256, nil
	case tpm2.AlgSHA384:
		return crypto.SHA384, nil
	case tpm2.AlgSHA512:
		return crypto.SHA512, nil
	default:
		return crypto.Hash(0), fmt.Errorf("tcg: no hash function bound to algorithm %v", a)
	}
}

func (a Algorithm) String() string {
	if s, ok := algorithmNames[a]; ok {
		return s
	}
	return fmt.Sprintf("Algorithm(0x%x)", uint16(a))
}

var algorithmsBySize = map[int]Algorithm{
	crypto.SHA1.Size():   AlgSHA1,
	crypto.SHA256.Size(): AlgSHA256,
	crypto.SHA384.Size(): AlgSHA384,
	crypto.SHA512.Size(): AlgSHA512,
}

// AlgorithmFromDigestSize returns the algorithm whose digests are size bytes
// long. Runtime measurement records carry only a bare hash, so the algorithm
// must be inferred from its length; an unknown length is an error because
// the digest cannot be attributed to any algorithm.
func AlgorithmFromDigestSize(size int) (Algorithm, error) {
	alg, ok := algorithmsBySize[size]
	if !ok {
		return AlgError, fmt.Errorf("tcg: no algorithm with digest size %d", size)
	}
	return alg, nil
}

// Digest is a single hash value tagged with the algorithm that produced it.
type Digest struct {
	Alg  Algorithm
	Hash []byte
}
