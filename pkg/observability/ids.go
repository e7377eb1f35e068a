// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package observability

import (
	"crypto/rand"
	"encoding/hex"
)

// NewTraceID returns a 32-char lowercase hex trace id (16 random bytes),
// the W3C trace-context shape.
func NewTraceID() string {
	return randomHex(16)
}

// NewSpanID returns a 16-char lowercase hex span id (8 random bytes).
func NewSpanID() string {
	return randomHex(8)
}

func randomHex(n int) string {
	b := make([]byte, n)
	// crypto/rand.Read only fails when the OS entropy source is broken;
	// a zero id is still a valid (if degenerate) identifier then.
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
