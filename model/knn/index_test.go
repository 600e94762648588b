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

package knn

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/gorse-io/movierec/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simEpsilon = 0.0001

func newTestStore(t *testing.T) *dataset.RatingStore {
	store := dataset.NewRatingStore(dataset.DefaultScale)
	require.NoError(t, store.Ingest([]dataset.Rating{
		{UserId: "u1", ItemId: "i1", Value: 5},
		{UserId: "u1", ItemId: "i2", Value: 3},
		{UserId: "u1", ItemId: "i3", Value: 4},
		{UserId: "u2", ItemId: "i1", Value: 4},
		{UserId: "u2", ItemId: "i2", Value: 2},
		{UserId: "u3", ItemId: "i1", Value: 1},
		{UserId: "u3", ItemId: "i2", Value: 5},
		{UserId: "u3", ItemId: "i3", Value: 2},
	}))
	return store
}

func TestSimilarityIndex_Cosine(t *testing.T) {
	index, err := NewSimilarityIndex(context.Background(), newTestStore(t), &IndexConfig{
		Target: Users, Metric: Cosine, MinCommon: 1, Jobs: 2,
	})
	require.NoError(t, err)
	neighbors, err := index.SimilarUsers("u1", 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "u2", neighbors[0].Id)
	assert.InDelta(t, 0.99705, neighbors[0].Score, simEpsilon)
	assert.Equal(t, "u3", neighbors[1].Id)
	assert.InDelta(t, 0.72296, neighbors[1].Score, simEpsilon)

	neighbors, err = index.SimilarUsers("u2", 5)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "u1", neighbors[0].Id)
	assert.Equal(t, "u3", neighbors[1].Id)
	assert.InDelta(t, 0.61394, neighbors[1].Score, simEpsilon)

	neighbors, err = index.SimilarUsers("u1", 1)
	require.NoError(t, err)
	assert.Len(t, neighbors, 1)
}

func TestSimilarityIndex_Pearson(t *testing.T) {
	index, err := NewSimilarityIndex(context.Background(), newTestStore(t), &IndexConfig{
		Target: Users, Metric: Pearson, MinCommon: 1, Jobs: 1,
	})
	require.NoError(t, err)
	neighbors, err := index.SimilarUsers("u1", 10)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "u2", neighbors[0].Id)
	assert.InDelta(t, 1, neighbors[0].Score, simEpsilon)
	// negative correlations are kept
	assert.Equal(t, "u3", neighbors[1].Id)
	assert.InDelta(t, -0.96077, neighbors[1].Score, simEpsilon)
	for _, neighbor := range neighbors {
		assert.LessOrEqual(t, neighbor.Score, float32(1))
		assert.GreaterOrEqual(t, neighbor.Score, float32(-1))
	}
}

func TestSimilarityIndex_MinCommon(t *testing.T) {
	index, err := NewSimilarityIndex(context.Background(), newTestStore(t), &IndexConfig{
		Target: Users, Metric: Cosine, MinCommon: 3,
	})
	require.NoError(t, err)
	neighbors, err := index.SimilarUsers("u1", 10)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "u3", neighbors[0].Id)
	// a user without neighbors is still known
	neighbors, err = index.SimilarUsers("u2", 10)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestSimilarityIndex_TieBreak(t *testing.T) {
	store := dataset.NewRatingStore(dataset.DefaultScale)
	require.NoError(t, store.Ingest([]dataset.Rating{
		{UserId: "a", ItemId: "i1", Value: 3},
		{UserId: "c", ItemId: "i1", Value: 3},
		{UserId: "b", ItemId: "i1", Value: 3},
		{UserId: "d", ItemId: "i1", Value: 3},
	}))
	for _, size := range []int{0, 2} {
		index, err := NewSimilarityIndex(context.Background(), store, &IndexConfig{
			Target: Users, Metric: Cosine, MinCommon: 1, Size: size, Jobs: 1,
		})
		require.NoError(t, err)
		neighbors, err := index.SimilarUsers("c", 2)
		require.NoError(t, err)
		assert.Equal(t, []Neighbor{{Id: "a", Score: 1}, {Id: "b", Score: 1}}, neighbors)
	}
}

func TestSimilarityIndex_Items(t *testing.T) {
	index, err := NewSimilarityIndex(context.Background(), newTestStore(t), &IndexConfig{
		Target: Items, Metric: Cosine, MinCommon: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, Items, index.Target())
	assert.Equal(t, Cosine, index.Metric())
	neighbors, err := index.SimilarItems("i3", 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "i1", neighbors[0].Id)
	assert.InDelta(t, 0.96476, neighbors[0].Score, simEpsilon)
	assert.Equal(t, "i2", neighbors[1].Id)
	assert.InDelta(t, 0.84366, neighbors[1].Score, simEpsilon)

	_, err = index.SimilarUsers("u1", 2)
	assert.True(t, errors.Is(err, errors.NotSupported))
}

func TestSimilarityIndex_Errors(t *testing.T) {
	index, err := NewSimilarityIndex(context.Background(), newTestStore(t), nil)
	require.NoError(t, err)
	_, err = index.SimilarUsers("u9", 2)
	assert.True(t, errors.Is(err, ErrUnknownEntity))
	_, err = index.SimilarUsers("u1", 0)
	assert.True(t, errors.Is(err, ErrInvalidK))
	_, err = index.SimilarItems("i1", 1)
	assert.True(t, errors.Is(err, errors.NotSupported))

	_, err = NewSimilarityIndex(context.Background(), newTestStore(t), &IndexConfig{Target: Users, Metric: "jaccard"})
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewSimilarityIndex(context.Background(), newTestStore(t), &IndexConfig{Target: "genres", Metric: Cosine})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestSimilarityIndex_ZeroDenominator(t *testing.T) {
	store := dataset.NewRatingStore(dataset.DefaultScale)
	require.NoError(t, store.Ingest([]dataset.Rating{
		{UserId: "u1", ItemId: "i1", Value: 3},
		{UserId: "u1", ItemId: "i2", Value: 3},
		{UserId: "u2", ItemId: "i1", Value: 2},
		{UserId: "u2", ItemId: "i2", Value: 4},
	}))
	// u1 has constant ratings, so its centered vector is zero
	index, err := NewSimilarityIndex(context.Background(), store, &IndexConfig{Target: Users, Metric: Pearson})
	require.NoError(t, err)
	neighbors, err := index.SimilarUsers("u1", 1)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}
