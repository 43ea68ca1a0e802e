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

package tcg

import (
	"crypto"
	"testing"
)

func TestDigestSizes(t *testing.T) {
	for _, tt := range []struct {
		alg  Algorithm
		size int
	}{
		{AlgSHA1, 20},
		{AlgSHA256, 32},
		{AlgSHA384, 48},
		{AlgSHA512, 64},
	} {
		size, ok := tt.alg.DigestSize()
		if !ok || size != tt.size {
			t.Errorf("%v: got size (%d, %v), want (%d, true)", tt.alg, size, ok, tt.size)
		}
	}
	if _, ok := Algorithm(0x0012).DigestSize(); ok {
		t.Error("unregistered algorithm reported a digest size")
	}
}

func TestCryptoHashBinding(t *testing.T) {
	h, err := AlgSHA256.CryptoHash()
	if err != nil {
		t.Fatalf("binding SHA-256: %v", err)
	}
	if h != crypto.SHA256 {
		t.Errorf("got hash %v, want %v", h, crypto.SHA256)
	}

	if _, err := AlgError.CryptoHash(); err == nil {
		t.Error("binding TPM_ALG_ERROR succeeded, want error")
	}
	if _, err := Algorithm(0x0012).CryptoHash(); err == nil {
		t.Error("binding an unregistered algorithm succeeded, want error")
	}
}

func TestAlgorithmFromDigestSize(t *testing.T) {
	alg, err := AlgorithmFromDigestSize(20)
	if err != nil {
		t.Fatalf("looking up 20-byte digests: %v", err)
	}
	if alg != AlgSHA1 {
		t.Errorf("got %v, want %v", alg, AlgSHA1)
	}

	if _, err := AlgorithmFromDigestSize(47); err == nil {
		t.Error("looking up an unknown digest size succeeded, want error")
	}
}

func TestAlgorithmString(t *testing.T) {
	if got := AlgSHA384.String(); got != "TPM_ALG_SHA384" {
		t.Errorf("got %q, want %q", got, "TPM_ALG_SHA384")
	}
	if got := Algorithm(0x0012).String(); got != "Algorithm(0x12)" {
		t.Errorf("got %q, want %q", got, "Algorithm(0x12)")
	}
}

func TestSpecIDDigestSize(t *testing.T) {
	s := &SpecIDEvent{AlgSizes: []AlgorithmSize{{Alg: AlgSHA1, Size: 20}, {Alg: AlgSHA256, Size: 32}}}
	if size, ok := s.DigestSize(AlgSHA256); !ok || size != 32 {
		t.Errorf("got (%d, %v), want (32, true)", size, ok)
	}
	if _, ok := s.DigestSize(AlgSHA384); ok {
		t.Error("undeclared algorithm reported a digest size")
	}
}

func TestEventTypeString(t *testing.T) {
	if got := Separator.String(); got != "Separator" {
		t.Errorf("got %q, want %q", got, "Separator")
	}
	if got := EventType(0x1234).String(); got != "EventType(0x1234)" {
		t.Errorf("got %q, want %q", got, "EventType(0x1234)")
	}
}
