/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package kv

import (
	"encoding/base64"
	"strings"
)

// Key joins a namespace and an identifier into a NATS-safe key. Identifiers
// containing characters outside [A-Za-z0-9_-] are base64url encoded under a
// "b64." marker so distinct identifiers never collide.
func Key(namespace, id string) string {
	if isPlainToken(id) {
		return namespace + "." + id
	}

	return namespace + ".b64." + base64.RawURLEncoding.EncodeToString([]byte(id))
}

func isPlainToken(s string) bool {
	if s == "" || strings.HasPrefix(s, "b64") {
		return false
	}

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}

	return true
}
