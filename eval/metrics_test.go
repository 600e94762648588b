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

package eval

import (
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

const delta = 0.0001

func TestRMSEAndMAE(t *testing.T) {
	x := []float32{1, 2.5, 4, 5}
	rmse, err := RMSE(x, x)
	assert.NoError(t, err)
	assert.Zero(t, rmse)
	mae, err := MAE(x, x)
	assert.NoError(t, err)
	assert.Zero(t, mae)

	rmse, err = RMSE([]float32{1, 2, 3}, []float32{2, 2, 5})
	assert.NoError(t, err)
	assert.InDelta(t, 1.29099, rmse, delta)
	mae, err = MAE([]float32{1, 2, 3}, []float32{2, 2, 5})
	assert.NoError(t, err)
	assert.InDelta(t, 1, mae, delta)

	_, err = RMSE([]float32{1}, []float32{1, 2})
	assert.True(t, errors.Is(err, ErrLengthMismatch))
	_, err = MAE(nil, nil)
	assert.True(t, errors.Is(err, ErrEmptyInput))
}

func TestRankingMetrics(t *testing.T) {
	results := map[string]UserResult{
		"u1": {Actual: mapset.NewSet("i1", "i2"), Predicted: []string{"i3", "i1", "i4"}},
	}
	precision, err := PrecisionAtK(results, 2)
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, precision, delta)
	recall, err := RecallAtK(results, 2)
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, recall, delta)
	ndcg, err := NDCGAtK(results, 2)
	assert.NoError(t, err)
	assert.InDelta(t, 0.38685, ndcg, delta)

	// short lists are not padded
	precision, err = PrecisionAtK(results, 5)
	assert.NoError(t, err)
	assert.InDelta(t, 0.2, precision, delta)
	recall, err = RecallAtK(results, 5)
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, recall, delta)
}

func TestRankingMetricsAverage(t *testing.T) {
	results := map[string]UserResult{
		"u1": {Actual: mapset.NewSet("i1"), Predicted: []string{"i1", "i2"}},
		"u2": {Actual: mapset.NewSet("i3"), Predicted: []string{"i1", "i2"}},
		// users without relevant movies are ignored
		"u3": {Actual: mapset.NewSet[string](), Predicted: []string{"i1"}},
	}
	precision, err := PrecisionAtK(results, 1)
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, precision, delta)
	recall, err := RecallAtK(results, 2)
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, recall, delta)
	ndcg, err := NDCGAtK(results, 2)
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, ndcg, delta)
}

func TestRankingMetricsErrors(t *testing.T) {
	results := map[string]UserResult{
		"u1": {Actual: mapset.NewSet("i1"), Predicted: []string{"i1"}},
	}
	_, err := PrecisionAtK(results, 0)
	assert.True(t, errors.Is(err, ErrInvalidK))
	_, err = RecallAtK(results, -1)
	assert.True(t, errors.Is(err, ErrInvalidK))
	_, err = NDCGAtK(map[string]UserResult{}, 1)
	assert.True(t, errors.Is(err, ErrEmptyInput))
	_, err = PrecisionAtK(map[string]UserResult{"u1": {Predicted: []string{"i1"}}}, 1)
	assert.True(t, errors.Is(err, ErrEmptyInput))
}

func TestNDCG(t *testing.T) {
	actual := mapset.NewSet("i1", "i2", "i3")
	assert.InDelta(t, 1, NDCG(actual, []string{"i1", "i2", "i3"}, 3), delta)
	assert.InDelta(t, 1, NDCG(actual, []string{"i2", "i1"}, 2), delta)
	assert.Zero(t, NDCG(actual, []string{"i4", "i5"}, 2))
	assert.Zero(t, NDCG(actual, nil, 2))
}
