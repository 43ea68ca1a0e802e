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

	"github.com/sahason/evidence-api/internal/eventdata"
	"github.com/sahason/evidence-api/tcg"
)

// UEFIVariable decodes the record's payload as a UEFI_VARIABLE_DATA
// structure. Only EFI variable events carry that layout.
func (e *StandardEvent) UEFIVariable() (*eventdata.UEFIVariableData, error) {
	switch e.Type {
	case tcg.EFIVariableDriverConfig, tcg.EFIVariableBoot, tcg.EFIVariableAuthority:
	default:
		return nil, fmt.Errorf("eventlog: %v events do not carry UEFI variable data", e.Type)
	}
	return eventdata.ParseUEFIVariableData(e.Data)
}

// UEFIVariableAuthority decodes the record's payload as a UEFI variable
// authority event, yielding the certificate that authorized a secure boot
// database update.
func (e *StandardEvent) UEFIVariableAuthority() (*eventdata.UEFIVariableAuthority, error) {
	if e.Type != tcg.EFIVariableAuthority {
		return nil, fmt.Errorf("eventlog: %v events do not carry authority data", e.Type)
	}
	return eventdata.ParseUEFIVariableAuthority(e.Data)
}
