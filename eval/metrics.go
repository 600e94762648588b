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

// Package eval measures rating accuracy and ranking quality of predictors on a
// held-out test set.
package eval

import (
	"slices"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const (
	ErrLengthMismatch = errors.ConstError("length mismatch")
	ErrEmptyInput     = errors.ConstError("empty input")
	ErrInvalidK       = errors.ConstError("invalid k")
)

func checkPairs(predictions, actuals []float32) error {
	if len(predictions) != len(actuals) {
		return errors.WithType(errors.NotValidf("%d predictions for %d ratings", len(predictions), len(actuals)), ErrLengthMismatch)
	}
	if len(predictions) == 0 {
		return errors.WithType(errors.NotValidf("no rating"), ErrEmptyInput)
	}
	return nil
}

// RMSE is root mean square error.
//
//	\sqrt{\frac{1}{n} \sum (\hat{r} - r)^2}
func RMSE(predictions, actuals []float32) (float32, error) {
	if err := checkPairs(predictions, actuals); err != nil {
		return 0, errors.Trace(err)
	}
	var sum float32
	for i := range predictions {
		diff := predictions[i] - actuals[i]
		sum += diff * diff
	}
	return math32.Sqrt(sum / float32(len(predictions))), nil
}

// MAE is mean absolute error.
//
//	\frac{1}{n} \sum |\hat{r} - r|
func MAE(predictions, actuals []float32) (float32, error) {
	if err := checkPairs(predictions, actuals); err != nil {
		return 0, errors.Trace(err)
	}
	var sum float32
	for i := range predictions {
		sum += math32.Abs(predictions[i] - actuals[i])
	}
	return sum / float32(len(predictions)), nil
}

// UserResult pairs the relevant movies of a user with the ranked list recommended to the user.
type UserResult struct {
	Actual    mapset.Set[string]
	Predicted []string
}

func hits(actual mapset.Set[string], rankList []string) int {
	return lo.CountBy(rankList, func(itemId string) bool {
		return actual.Contains(itemId)
	})
}

func topK(rankList []string, k int) []string {
	return rankList[:min(k, len(rankList))]
}

// Precision is the fraction of relevant movies among the top k recommended movies.
//
//	\frac{|relevant \cap retrieved_k|}{k}
func Precision(actual mapset.Set[string], rankList []string, k int) float32 {
	return float32(hits(actual, topK(rankList, k))) / float32(k)
}

// Recall is the fraction of relevant movies that appear in the top k.
//
//	\frac{|relevant \cap retrieved_k|}{|relevant|}
func Recall(actual mapset.Set[string], rankList []string, k int) float32 {
	return float32(hits(actual, topK(rankList, k))) / float32(actual.Cardinality())
}

// NDCG means Normalized Discounted Cumulative Gain with binary relevance.
func NDCG(actual mapset.Set[string], rankList []string, k int) float32 {
	// IDCG = \sum^{min(|REL|, k)}_{i=1} \frac {1} {\log_2(i+1)}
	idcg := float32(0)
	for i := 0; i < actual.Cardinality() && i < k; i++ {
		idcg += 1.0 / math32.Log2(float32(i)+2.0)
	}
	// DCG = \sum^{k}_{i=1} \frac {rel_i} {\log_2(i+1)}
	dcg := float32(0)
	for i, itemId := range topK(rankList, k) {
		if actual.Contains(itemId) {
			dcg += 1.0 / math32.Log2(float32(i)+2.0)
		}
	}
	return dcg / idcg
}

// averageAtK averages a metric over users with at least one relevant movie.
// Users are visited in id order so that the sum is reproducible.
func averageAtK(results map[string]UserResult, k int, metric func(mapset.Set[string], []string, int) float32) (float32, error) {
	if k <= 0 {
		return 0, errors.WithType(errors.NotValidf("k = %d", k), ErrInvalidK)
	}
	userIds := lo.Keys(results)
	slices.Sort(userIds)
	var sum float32
	count := 0
	for _, userId := range userIds {
		result := results[userId]
		if result.Actual == nil || result.Actual.Cardinality() == 0 {
			continue
		}
		sum += metric(result.Actual, result.Predicted, k)
		count++
	}
	if count == 0 {
		return 0, errors.WithType(errors.NotValidf("no user with relevant movies"), ErrEmptyInput)
	}
	return sum / float32(count), nil
}

// PrecisionAtK averages Precision over users with at least one relevant movie.
func PrecisionAtK(results map[string]UserResult, k int) (float32, error) {
	return averageAtK(results, k, Precision)
}

// RecallAtK averages Recall over users with at least one relevant movie.
func RecallAtK(results map[string]UserResult, k int) (float32, error) {
	return averageAtK(results, k, Recall)
}

// NDCGAtK averages NDCG over users with at least one relevant movie.
func NDCGAtK(results map[string]UserResult, k int) (float32, error) {
	return averageAtK(results, k, NDCG)
}
