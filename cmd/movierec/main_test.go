// Copyright 2025 gorse Project Authors
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

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
[model]
n_factors = 2
n_epochs = 50
lr = 0.01
random_state = 1
verbose = 0

[tune]
trials = 2
n_factors = [2, 4]
lr = [0.01]
reg = [0.02]
`

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(args ...string) (string, string, error) {
	stdout, stderr := bytes.NewBuffer(nil), bytes.NewBuffer(nil)
	command := newRootCommand()
	command.SetOut(stdout)
	command.SetErr(stderr)
	command.SetArgs(args)
	err := command.Execute()
	return stdout.String(), stderr.String(), err
}

func newSmallRatings(t *testing.T) string {
	return writeFile(t, "ratings.csv", "userId,movieId,rating,timestamp\n"+
		"u1,i1,5,964982703\n"+
		"u1,i2,3,964981247\n"+
		"u2,i1,4,964982224\n"+
		"u2,i3,2,964983815\n")
}

func newLargeRatings(t *testing.T) string {
	var builder strings.Builder
	for u := 0; u < 30; u++ {
		for i := 0; i < 20; i++ {
			if (u+i)%3 == 0 {
				continue
			}
			builder.WriteString(fmt.Sprintf("u%d::i%d::%d\n", u, i, 1+(u*i+u)%5))
		}
	}
	return writeFile(t, "ratings.dat", builder.String())
}

func TestRecommendUser(t *testing.T) {
	configPath := writeFile(t, "config.toml", testConfig)
	stdout, _, err := execute("recommend", "-c", configPath, "--ratings", newSmallRatings(t), "--header",
		"--user", "u1", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "i3")
	assert.NotContains(t, stdout, "i1")
	assert.NotContains(t, stdout, "i2")
}

func TestRecommendAll(t *testing.T) {
	configPath := writeFile(t, "config.toml", testConfig)
	for _, modelType := range []string{"svd", "user_knn", "item_knn"} {
		stdout, _, err := execute("recommend", "-c", configPath, "--ratings", newLargeRatings(t), "--sep", "::",
			"--model", modelType, "-n", "3")
		require.NoError(t, err, modelType)
		for u := 0; u < 30; u++ {
			assert.Contains(t, stdout, fmt.Sprintf(" u%d ", u), modelType)
		}
	}
}

func TestRecommendWithFilter(t *testing.T) {
	configPath := writeFile(t, "config.toml", testConfig)
	stdout, _, err := execute("recommend", "-c", configPath, "--ratings", newSmallRatings(t), "--header",
		"--user", "u1", "--filter", "raters >= 2")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "i3")

	_, _, err = execute("recommend", "-c", configPath, "--ratings", newSmallRatings(t), "--header",
		"--user", "u1", "--filter", "raters >=")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestSimilar(t *testing.T) {
	ratings := writeFile(t, "ratings.csv", "u1,i1,5\nu1,i2,3\nu1,i3,4\nu2,i1,4\nu2,i2,2\nu3,i1,1\nu3,i2,5\nu3,i3,2\n")
	stdout, _, err := execute("similar", "--ratings", ratings, "--user", "u1", "-k", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "u2")
	assert.Contains(t, stdout, "0.9971")
	assert.NotContains(t, stdout, "u3")

	stdout, _, err = execute("similar", "--ratings", ratings, "--item", "i3", "--metric", "cosine")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0.9648")

	_, _, err = execute("similar", "--ratings", ratings)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, _, err = execute("similar", "--ratings", ratings, "--user", "u9")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestEvaluate(t *testing.T) {
	configPath := writeFile(t, "config.toml", testConfig)
	stdout, _, err := execute("evaluate", "-c", configPath, "--ratings", newLargeRatings(t), "--sep", "::")
	require.NoError(t, err)
	assert.Contains(t, stdout, "RMSE")
	assert.Contains(t, stdout, "MAE")
	assert.Contains(t, stdout, "Precision@5")
	assert.Contains(t, stdout, "NDCG@10")
}

func TestTune(t *testing.T) {
	configPath := writeFile(t, "config.toml", testConfig)
	stdout, _, err := execute("tune", "-c", configPath, "--ratings", newLargeRatings(t), "--sep", "::", "--grid")
	require.NoError(t, err)
	assert.Contains(t, stdout, "*")
	assert.Equal(t, 1, strings.Count(stdout, "*"))

	stdout, _, err = execute("tune", "-c", configPath, "--ratings", newLargeRatings(t), "--sep", "::", "--trials", "2")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(stdout, "*"))
}

func TestLoadErrors(t *testing.T) {
	_, _, err := execute("recommend", "--user", "u1")
	assert.True(t, errors.Is(err, errors.NotValid))
	_, _, err = execute("recommend", "--ratings", newSmallRatings(t), "--model", "bpr")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Version:")
}
