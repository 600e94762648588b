// Copyright 2021 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import (
	"bufio"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidateId(t *testing.T) {
	assert.True(t, errors.Is(ValidateId(""), errors.NotValid))
	assert.True(t, errors.Is(ValidateId(" \t"), errors.NotValid))
	assert.NoError(t, ValidateId("movie/1"))
	assert.NoError(t, ValidateId("42"))
}

func splitLines(t *testing.T, text string, sep string) [][]string {
	sc := bufio.NewScanner(strings.NewReader(text))
	lines := make([][]string, 0)
	err := ReadLines(sc, sep, func(_ int, fields []string) bool {
		lines = append(lines, fields)
		return fields[0] != "STOP"
	})
	assert.NoError(t, err)
	return lines
}

func TestReadLines(t *testing.T) {
	assert.Equal(t, [][]string{{"1", "31", "2.5"}, {"1", "1029", "3.0"}},
		splitLines(t, "1,31,2.5\r\n1,1029,3.0\r\n", ","))
	assert.Equal(t, [][]string{{"1", "2", "3"}},
		splitLines(t, "1\t2\t3", "\t"))
	assert.Equal(t, [][]string{{"u,1", "say \"hi\""}},
		splitLines(t, "\"u,1\",\"say \"\"hi\"\"\"", ","))
	assert.Equal(t, [][]string{{"1\r\n2", "3"}, {"4", "5"}},
		splitLines(t, "\"1\r\n2\",3\r\n4,5", ","))
	assert.Equal(t, [][]string{{"1", "1193", "5", "978300760"}, {"1", "", "3"}},
		splitLines(t, "1::1193::5::978300760\n1::::3\n", "::"))
	assert.Equal(t, [][]string{{"1", "2"}, {"STOP"}},
		splitLines(t, "1,2\r\nSTOP\r\n7,8", ","))
}
