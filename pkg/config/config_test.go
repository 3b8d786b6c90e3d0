/*
Copyright 2025 The slowpoll Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slowpoll.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(write(t, `
min_poll: 5ms
stack_depth: 20
export:
  pprof: polls.pb.gz
http: localhost:8087
`))
	require.NoError(t, err)

	assert.Equal(t, Duration(5*time.Millisecond), c.MinPoll)
	assert.Equal(t, 20, c.StackDepth)
	assert.Equal(t, "polls.pb.gz", c.Export.Pprof)
	assert.Equal(t, "", c.Export.HTML)
	assert.Equal(t, "localhost:8087", c.HTTP)
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(write(t, `min_poll: 1ms`))
	require.NoError(t, err)

	assert.Equal(t, 5, c.StackDepth, "unset fields keep their defaults")
	assert.Equal(t, "", c.HTTP)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(write(t, `min_poll: [not, a, duration]`))
	assert.Error(t, err)

	_, err = Load(write(t, `min_poll: -5ms`))
	assert.Error(t, err)
}
