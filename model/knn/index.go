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

// Package knn implements neighborhood collaborative filtering: a similarity index
// over users or movies and the rating predictors built on top of it.
package knn

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorse-io/movierec/base/log"
	"github.com/gorse-io/movierec/base/progress"
	"github.com/gorse-io/movierec/common/heap"
	"github.com/gorse-io/movierec/common/parallel"
	"github.com/gorse-io/movierec/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// ErrUnknownEntity is returned for users or movies without ratings.
	ErrUnknownEntity = errors.ConstError("unknown entity")
	// ErrInvalidK is returned when the number of neighbors is not positive.
	ErrInvalidK = errors.ConstError("invalid k")
)

// Target is the kind of entity compared by an index.
type Target string

const (
	Users Target = "users"
	Items Target = "items"
)

// Metric is the similarity measure between two rating vectors.
type Metric string

const (
	// Cosine similarity over co-rated dimensions.
	Cosine Metric = "cosine"
	// Pearson correlation over co-rated dimensions, centered on each entity's mean rating.
	Pearson Metric = "pearson"
)

type IndexConfig struct {
	Target    Target
	Metric    Metric
	MinCommon int // minimal number of co-rated counterparts
	Size      int // number of neighbors kept per entity, zero keeps all
	Jobs      int
}

func NewIndexConfig() *IndexConfig {
	return &IndexConfig{
		Target:    Users,
		Metric:    Cosine,
		MinCommon: 1,
		Jobs:      1,
	}
}

func (config *IndexConfig) validate() error {
	if config.Target != Users && config.Target != Items {
		return errors.NotValidf("target %q", config.Target)
	}
	if config.Metric != Cosine && config.Metric != Pearson {
		return errors.NotValidf("metric %q", config.Metric)
	}
	if config.Size < 0 {
		return errors.NotValidf("size %d", config.Size)
	}
	return nil
}

type Neighbor struct {
	Id    string
	Score float32
}

// SimilarityIndex stores, for every user (or movie) with ratings, its neighbors
// ranked by similarity descending and id ascending. Pairs without any co-rated
// counterpart are never compared. The index is immutable once built.
type SimilarityIndex struct {
	target    Target
	metric    Metric
	neighbors map[string][]Neighbor
}

// accumulator collects the co-rated statistics of a pair.
type accumulator struct {
	dot    float32
	norm   float32
	other  float32
	common int
}

// NewSimilarityIndex computes similarities between all entities of the target
// kind that share at least one co-rated counterpart.
func NewSimilarityIndex(ctx context.Context, store *dataset.RatingStore, config *IndexConfig) (*SimilarityIndex, error) {
	if config == nil {
		config = NewIndexConfig()
	}
	if err := config.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	var (
		entities      []string
		vector        func(string) map[string]float32
		inverted      func(string) map[string]float32
		mean          func(string) (float32, bool)
		counterpartOf string
	)
	if config.Target == Users {
		entities, vector, inverted, mean = store.AllUserIds(), store.UserRatings, store.ItemRatings, store.UserMean
		counterpartOf = "items"
	} else {
		entities, vector, inverted, mean = store.AllItemIds(), store.ItemRatings, store.UserRatings, store.ItemMean
		counterpartOf = "users"
	}
	log.Logger().Info("build similarity index",
		zap.String("target", string(config.Target)),
		zap.String("metric", string(config.Metric)),
		zap.Int("n_entities", len(entities)),
		zap.Int("min_common", config.MinCommon))
	startTime := time.Now()

	means := make(map[string]float32, len(entities))
	if config.Metric == Pearson {
		for _, id := range entities {
			means[id], _ = mean(id)
		}
	}
	// centered returns the value used in the inner products.
	centered := func(id string, value float32) float32 {
		return value - means[id]
	}

	lists := make([][]Neighbor, len(entities))
	_, span := progress.Start(ctx, "NewSimilarityIndex", len(entities))
	err := parallel.ForEach(ctx, entities, config.Jobs, func(jobId int, a string) {
		accumulators := make(map[string]*accumulator)
		ratings := vector(a)
		// counterparts are visited in order so that sums are reproducible
		counterparts := lo.Keys(ratings)
		slices.Sort(counterparts)
		for _, c := range counterparts {
			xa := centered(a, ratings[c])
			for b, rb := range inverted(c) {
				if b == a {
					continue
				}
				xb := centered(b, rb)
				acc, ok := accumulators[b]
				if !ok {
					acc = &accumulator{}
					accumulators[b] = acc
				}
				acc.dot += xa * xb
				acc.norm += xa * xa
				acc.other += xb * xb
				acc.common++
			}
		}
		lists[jobId] = rank(accumulators, config.MinCommon, config.Size)
		span.Add(1)
	})
	if err != nil {
		span.Fail(err)
		return nil, errors.Trace(err)
	}
	span.End()

	index := &SimilarityIndex{
		target:    config.Target,
		metric:    config.Metric,
		neighbors: make(map[string][]Neighbor, len(entities)),
	}
	numPairs := 0
	for i, id := range entities {
		index.neighbors[id] = lists[i]
		numPairs += len(lists[i])
	}
	log.Logger().Info("build similarity index complete",
		zap.Int("n_pairs", numPairs),
		zap.String("counterparts", counterpartOf),
		zap.String("build_time", time.Since(startTime).String()))
	return index, nil
}

// rank turns accumulators into neighbors, dropping pairs with a zero denominator
// or too few co-rated counterparts.
func rank(accumulators map[string]*accumulator, minCommon, size int) []Neighbor {
	if size > 0 {
		filter := heap.NewTopKFilter[string, float32](size)
		for id, acc := range accumulators {
			if score, ok := similarity(acc, minCommon); ok {
				filter.Push(id, score)
			}
		}
		elems := filter.PopAll()
		neighbors := make([]Neighbor, len(elems))
		for i, elem := range elems {
			neighbors[i] = Neighbor{Id: elem.Value, Score: elem.Weight}
		}
		return neighbors
	}
	neighbors := make([]Neighbor, 0, len(accumulators))
	for id, acc := range accumulators {
		if score, ok := similarity(acc, minCommon); ok {
			neighbors = append(neighbors, Neighbor{Id: id, Score: score})
		}
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Score != neighbors[j].Score {
			return neighbors[i].Score > neighbors[j].Score
		}
		return neighbors[i].Id < neighbors[j].Id
	})
	return neighbors
}

func similarity(acc *accumulator, minCommon int) (float32, bool) {
	if acc.common < minCommon {
		return 0, false
	}
	denominator := math32.Sqrt(acc.norm) * math32.Sqrt(acc.other)
	if denominator == 0 {
		return 0, false
	}
	return max(-1, min(1, acc.dot/denominator)), true
}

func (index *SimilarityIndex) Target() Target {
	return index.target
}

func (index *SimilarityIndex) Metric() Metric {
	return index.metric
}

// Neighbors returns the k most similar entities to id, excluding id itself.
func (index *SimilarityIndex) Neighbors(id string, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, errors.WithType(errors.NotValidf("k = %d", k), ErrInvalidK)
	}
	neighbors, ok := index.neighbors[id]
	if !ok {
		return nil, errors.WithType(errors.NotFoundf("%s %q", index.target, id), ErrUnknownEntity)
	}
	return append([]Neighbor{}, neighbors[:min(k, len(neighbors))]...), nil
}

// SimilarUsers returns the k most similar users. The index must target users.
func (index *SimilarityIndex) SimilarUsers(userId string, k int) ([]Neighbor, error) {
	if index.target != Users {
		return nil, errors.NotSupportedf("similar users on an index of %s", index.target)
	}
	return index.Neighbors(userId, k)
}

// SimilarItems returns the k most similar movies. The index must target items.
func (index *SimilarityIndex) SimilarItems(itemId string, k int) ([]Neighbor, error) {
	if index.target != Items {
		return nil, errors.NotSupportedf("similar items on an index of %s", index.target)
	}
	return index.Neighbors(itemId, k)
}

// ranked returns all stored neighbors of id without copying.
func (index *SimilarityIndex) ranked(id string) []Neighbor {
	return index.neighbors[id]
}

func (index *SimilarityIndex) String() string {
	return fmt.Sprintf("%s similarity of %s", index.metric, index.target)
}
