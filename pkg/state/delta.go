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

// Package state keeps the last known merged state of every machine and
// computes the fields each new payload changes.
package state

import (
	"encoding/json"
	"reflect"
)

// State maps a field name to its last reported value. Values are whatever
// encoding/json produces for an object member: string, float64, bool, nil,
// []any or map[string]any.
type State map[string]any

// Diff returns the part of payload that differs from prev. A nested object
// is compared one level deep and contributes only its changed sub-keys; an
// object with no changed sub-keys is left out entirely. Any other value is
// included when it is absent from prev or not equal to the stored value.
func Diff(prev State, payload map[string]any) State {
	delta := State{}

	for key, value := range payload {
		old, existed := prev[key]

		if nested, ok := value.(map[string]any); ok {
			oldNested, _ := old.(map[string]any)

			sub := make(map[string]any)

			for subKey, subValue := range nested {
				if oldValue, ok := oldNested[subKey]; !ok || !valuesEqual(oldValue, subValue) {
					sub[subKey] = subValue
				}
			}

			if len(sub) > 0 {
				delta[key] = sub
			}

			continue
		}

		if !existed || !valuesEqual(old, value) {
			delta[key] = value
		}
	}

	return delta
}

// Apply merges payload into s, last write wins per top-level key.
func (s State) Apply(payload map[string]any) {
	for key, value := range payload {
		s[key] = value
	}
}

func valuesEqual(a, b any) bool {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa == fb
		}
	}

	return reflect.DeepEqual(a, b)
}

// number normalizes the numeric kinds a payload built in Go code may hold
// so 70 and 70.0 compare equal to the float64 decoded from the cache.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
