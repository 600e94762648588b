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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserBased(t *testing.T) {
	store := newTestStore(t)
	index, err := NewSimilarityIndex(context.Background(), store, NewIndexConfig())
	require.NoError(t, err)
	m, err := NewUserBased(index, store, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2.74594, m.Predict("u2", "i3"), simEpsilon)
	assert.NoError(t, m.ValidateUser("u2"))

	// unknown users
	err = m.ValidateUser("u9")
	assert.True(t, errors.Is(err, ErrUnknownEntity))
	assert.True(t, errors.Is(err, errors.UserNotFound))
	assert.Equal(t, store.GlobalMean(), m.Predict("u9", "i1"))

	// no neighbor rated the movie
	assert.InDelta(t, 3, m.Predict("u2", "i9"), simEpsilon)

	_, err = NewUserBased(index, store, 0)
	assert.True(t, errors.Is(err, ErrInvalidK))
}

func TestUserBasedWithoutNeighbors(t *testing.T) {
	store := newTestStore(t)
	index, err := NewSimilarityIndex(context.Background(), store, &IndexConfig{Target: Users, Metric: Cosine, MinCommon: 3})
	require.NoError(t, err)
	m, err := NewUserBased(index, store, DefaultNeighbors)
	require.NoError(t, err)
	assert.InDelta(t, 3, m.Predict("u2", "i3"), simEpsilon)
}

func TestItemBased(t *testing.T) {
	store := newTestStore(t)
	index, err := NewSimilarityIndex(context.Background(), store, &IndexConfig{Target: Items, Metric: Cosine, MinCommon: 1})
	require.NoError(t, err)
	m, err := NewItemBased(index, store, DefaultNeighbors)
	require.NoError(t, err)
	assert.InDelta(t, 3.06697, m.Predict("u2", "i3"), simEpsilon)
	assert.InDelta(t, 3, m.Predict("u2", "i9"), simEpsilon)
	assert.True(t, errors.Is(m.ValidateUser("u9"), ErrUnknownEntity))

	_, err = NewUserBased(index, store, DefaultNeighbors)
	assert.Error(t, err)
	_, err = NewItemBased(index, store, -1)
	assert.True(t, errors.Is(err, ErrInvalidK))
}
