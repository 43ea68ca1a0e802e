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
	"fmt"
	"strings"
)

func (e HeaderEvent) String() string {
	return fmt.Sprintf("register=%d type=%v digest=%x event=%d bytes",
		e.Register, e.Type, e.Digest, len(e.Data))
}

func (e StandardEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "register=%d rec=%d type=%v", e.Register, e.RecNum, e.Type)
	for _, d := range e.Digests {
		fmt.Fprintf(&b, " %v:%x", d.Alg, d.Hash)
	}
	if name, ok := e.ExtraInfo["template_name"]; ok {
		fmt.Fprintf(&b, " template=%s", name)
	}
	fmt.Fprintf(&b, " event=%d bytes", len(e.Data))
	return b.String()
}

func (e CanonicalEvent) String() string {
	return fmt.Sprintf("register=%d rec=%d (canonical)", e.Register, e.RecNum)
}

func (r ReplayResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "register=%d", r.Register)
	for _, d := range r.Digests {
		fmt.Fprintf(&b, " %v:%x", d.Alg, d.Hash)
	}
	return b.String()
}
