// Copyright 2024 gorse Project Authors
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

// Package recommend ranks unrated movies for users with any model.Predictor.
package recommend

import (
	"context"
	"fmt"

	"github.com/gorse-io/movierec/base/progress"
	"github.com/gorse-io/movierec/common/heap"
	"github.com/gorse-io/movierec/common/parallel"
	"github.com/gorse-io/movierec/dataset"
	"github.com/gorse-io/movierec/model"
	"github.com/juju/errors"
)

const (
	// ErrUnknownUser is returned when the predictor has no representation of the user.
	ErrUnknownUser = errors.ConstError("unknown user")
	// ErrInvalidN is returned when the number of recommendations is not positive.
	ErrInvalidN = errors.ConstError("invalid number of recommendations")
)

type ScoredItem struct {
	ItemId string
	Score  float32
}

// Recommendation is the ranked list for a user, sorted by score descending and
// item id ascending among equal scores.
type Recommendation struct {
	UserId string
	Items  []ScoredItem
}

func (r *Recommendation) ItemIds() []string {
	ids := make([]string, len(r.Items))
	for i, item := range r.Items {
		ids[i] = item.ItemId
	}
	return ids
}

// Recommender generates candidates from the rating store: every known movie the
// user has not rated.
type Recommender struct {
	store   *dataset.RatingStore
	itemIds []string
	filter  *Filter
}

func New(store *dataset.RatingStore) *Recommender {
	return &Recommender{
		store:   store,
		itemIds: store.AllItemIds(),
	}
}

// WithFilter returns a recommender dropping candidates rejected by filter.
func (r *Recommender) WithFilter(filter *Filter) *Recommender {
	return &Recommender{store: r.store, itemIds: r.itemIds, filter: filter}
}

// Recommend returns the top n unrated movies for a user scored by predictor.
func (r *Recommender) Recommend(userId string, n int, predictor model.Predictor) (*Recommendation, error) {
	if n <= 0 {
		return nil, errors.WithType(errors.NotValidf("n = %d", n), ErrInvalidN)
	}
	if err := predictor.ValidateUser(userId); err != nil {
		return nil, errors.WithType(errors.NewUserNotFound(err, fmt.Sprintf("user %q", userId)), ErrUnknownUser)
	}
	filter := heap.NewTopKFilter[string, float32](n)
	for _, itemId := range r.itemIds {
		if r.store.HasRated(userId, itemId) {
			continue
		}
		score := predictor.Predict(userId, itemId)
		if r.filter != nil {
			ok, err := r.accept(userId, itemId, score)
			if err != nil {
				return nil, errors.Trace(err)
			}
			if !ok {
				continue
			}
		}
		filter.Push(itemId, score)
	}
	elems := filter.PopAll()
	recommendation := &Recommendation{UserId: userId, Items: make([]ScoredItem, len(elems))}
	for i, elem := range elems {
		recommendation.Items[i] = ScoredItem{ItemId: elem.Value, Score: elem.Weight}
	}
	return recommendation, nil
}

func (r *Recommender) accept(userId, itemId string, score float32) (bool, error) {
	mean, _ := r.store.ItemMean(itemId)
	return r.filter.Accept(Candidate{
		UserId: userId,
		ItemId: itemId,
		Score:  float64(score),
		Raters: r.store.RatersOf(itemId).Cardinality(),
		Mean:   float64(mean),
	})
}

// RecommendAll recommends for users concurrently. Models are read-only after
// training, so jobs share them without locks.
func (r *Recommender) RecommendAll(ctx context.Context, userIds []string, n int, predictor model.Predictor, jobs int) (map[string]*Recommendation, error) {
	if n <= 0 {
		return nil, errors.WithType(errors.NotValidf("n = %d", n), ErrInvalidN)
	}
	recommendations := make([]*Recommendation, len(userIds))
	_, span := progress.Start(ctx, "RecommendAll", len(userIds))
	err := parallel.Parallel(ctx, len(userIds), jobs, func(_, jobId int) error {
		recommendation, err := r.Recommend(userIds[jobId], n, predictor)
		if err != nil {
			return errors.Trace(err)
		}
		recommendations[jobId] = recommendation
		span.Add(1)
		return nil
	})
	if err != nil {
		span.Fail(err)
		return nil, errors.Trace(err)
	}
	span.End()
	results := make(map[string]*Recommendation, len(userIds))
	for i, userId := range userIds {
		results[userId] = recommendations[i]
	}
	return results, nil
}
