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

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamURL(t *testing.T) {
	tests := []struct {
		name    string
		opts    options
		want    string
		wantErr error
	}{
		{name: "machine", opts: options{host: "core:8090", machine: 5}, want: "ws://core:8090/realtime/5"},
		{name: "company over tls", opts: options{host: "core:443", company: 7, secure: true}, want: "wss://core:443/realtime/company/7"},
		{name: "no target", opts: options{host: "core:8090"}, wantErr: errTargetRequired},
		{name: "both targets", opts: options{host: "core:8090", machine: 5, company: 7}, wantErr: errTargetRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := streamURL(tt.opts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFrame(t *testing.T) {
	_, heartbeat := formatFrame([]byte(`{"type":"heartbeat"}`))
	assert.True(t, heartbeat)

	line, heartbeat := formatFrame([]byte(`{"type":"telemetry","machine_id":5,"data":{"water":70}}`))
	assert.False(t, heartbeat)
	assert.Contains(t, line, "telemetry")
	assert.Contains(t, line, "machine=5")
	assert.Contains(t, line, `{"water":70}`)

	line, _ = formatFrame([]byte(`not json`))
	assert.Equal(t, "unparsed: not json", line)
}
