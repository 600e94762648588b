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
	"github.com/chewxy/math32"
	"github.com/gorse-io/movierec/dataset"
	"github.com/gorse-io/movierec/model"
	"github.com/juju/errors"
)

// DefaultNeighbors is the default number of neighbors used in predictions.
const DefaultNeighbors = 10

func validateUser(store *dataset.RatingStore, userId string) error {
	if _, ok := store.UserMean(userId); !ok {
		return errors.WithType(errors.UserNotFoundf("user %q", userId), ErrUnknownEntity)
	}
	return nil
}

// UserBased predicts ratings from the ratings of similar users:
//
//	\hat{r}_{ui} = \bar{r}_u + \frac{\sum_{v \in N^k_i(u)} sim(u,v) (r_{vi} - \bar{r}_v)}{\sum_{v \in N^k_i(u)} |sim(u,v)|}
//
// where N^k_i(u) are the k most similar users of u who rated i.
type UserBased struct {
	Index *SimilarityIndex
	Store *dataset.RatingStore
	K     int
}

func NewUserBased(index *SimilarityIndex, store *dataset.RatingStore, k int) (*UserBased, error) {
	if index.Target() != Users {
		return nil, errors.NotValidf("user based prediction on an index of %s", index.Target())
	}
	if k <= 0 {
		return nil, errors.WithType(errors.NotValidf("k = %d", k), ErrInvalidK)
	}
	return &UserBased{Index: index, Store: store, K: k}, nil
}

// ValidateUser fails for users without ratings.
func (m *UserBased) ValidateUser(userId string) error {
	return validateUser(m.Store, userId)
}

// Predict falls back to the mean of the user if no neighbor rated the movie, and
// to the global mean for unknown users.
func (m *UserBased) Predict(userId, itemId string) float32 {
	userMean, ok := m.Store.UserMean(userId)
	if !ok {
		return m.Store.GlobalMean()
	}
	var numerator, denominator float32
	count := 0
	for _, neighbor := range m.Index.ranked(userId) {
		if count >= m.K {
			break
		}
		rating, rated := m.Store.Get(neighbor.Id, itemId)
		if !rated {
			continue
		}
		neighborMean, _ := m.Store.UserMean(neighbor.Id)
		numerator += neighbor.Score * (rating.Value - neighborMean)
		denominator += math32.Abs(neighbor.Score)
		count++
	}
	if denominator == 0 {
		return userMean
	}
	return m.Store.Scale().Clip(userMean + numerator/denominator)
}

// ItemBased predicts ratings from the ratings of the user on similar movies:
//
//	\hat{r}_{ui} = \frac{\sum_{j \in N^k_u(i)} sim(i,j) r_{uj}}{\sum_{j \in N^k_u(i)} |sim(i,j)|}
//
// where N^k_u(i) are the k most similar movies of i rated by u.
type ItemBased struct {
	Index *SimilarityIndex
	Store *dataset.RatingStore
	K     int
}

func NewItemBased(index *SimilarityIndex, store *dataset.RatingStore, k int) (*ItemBased, error) {
	if index.Target() != Items {
		return nil, errors.NotValidf("item based prediction on an index of %s", index.Target())
	}
	if k <= 0 {
		return nil, errors.WithType(errors.NotValidf("k = %d", k), ErrInvalidK)
	}
	return &ItemBased{Index: index, Store: store, K: k}, nil
}

// ValidateUser fails for users without ratings.
func (m *ItemBased) ValidateUser(userId string) error {
	return validateUser(m.Store, userId)
}

// Predict falls back to the mean of the user if the user rated no similar movie,
// and to the global mean for unknown users.
func (m *ItemBased) Predict(userId, itemId string) float32 {
	userMean, ok := m.Store.UserMean(userId)
	if !ok {
		return m.Store.GlobalMean()
	}
	var numerator, denominator float32
	count := 0
	for _, neighbor := range m.Index.ranked(itemId) {
		if count >= m.K {
			break
		}
		rating, rated := m.Store.Get(userId, neighbor.Id)
		if !rated {
			continue
		}
		numerator += neighbor.Score * rating.Value
		denominator += math32.Abs(neighbor.Score)
		count++
	}
	if denominator == 0 {
		return userMean
	}
	return m.Store.Scale().Clip(numerator / denominator)
}

var (
	_ model.Predictor = (*UserBased)(nil)
	_ model.Predictor = (*ItemBased)(nil)
)
