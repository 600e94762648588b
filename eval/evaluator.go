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
	"context"
	"fmt"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/movierec/base/log"
	"github.com/gorse-io/movierec/base/progress"
	"github.com/gorse-io/movierec/common/parallel"
	"github.com/gorse-io/movierec/dataset"
	"github.com/gorse-io/movierec/model"
	"github.com/gorse-io/movierec/recommend"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// DefaultThreshold is the minimal rating of a relevant movie.
const DefaultThreshold = 4.0

type KScore struct {
	K         int
	Precision float32
	Recall    float32
	NDCG      float32
}

// Report is the result of an evaluation run.
type Report struct {
	RMSE         float32
	MAE          float32
	AtK          []KScore
	NumRatings   int // test ratings predicted for RMSE and MAE
	NumUsers     int // users with relevant movies in the ranking metrics
	SkippedUsers int // users the predictor cannot represent
}

// Evaluator evaluates predictors on a train/test split. Relevant movies of a user
// are the test movies rated at least Threshold. Ranked lists exclude movies the
// user rated in the training set.
type Evaluator struct {
	Train     *dataset.RatingStore
	Test      *dataset.RatingStore
	Ks        []int
	Threshold float32
	Jobs      int
}

func NewEvaluator(train, test *dataset.RatingStore) *Evaluator {
	return &Evaluator{
		Train:     train,
		Test:      test,
		Ks:        []int{5, 10},
		Threshold: DefaultThreshold,
		Jobs:      1,
	}
}

// Evaluate computes RMSE and MAE on every test rating and Precision, Recall and
// NDCG for each K on users with relevant movies.
func (e *Evaluator) Evaluate(ctx context.Context, predictor model.Predictor) (*Report, error) {
	if len(e.Ks) == 0 {
		return nil, errors.WithType(errors.NotValidf("empty list of k"), ErrInvalidK)
	}
	for _, k := range e.Ks {
		if k <= 0 {
			return nil, errors.WithType(errors.NotValidf("k = %d", k), ErrInvalidK)
		}
	}
	startTime := time.Now()
	report := &Report{}
	newCtx, span := progress.Start(ctx, "Evaluate", 2)

	// rating accuracy
	ratings := e.Test.Ratings()
	predictions := make([]float32, len(ratings))
	actuals := make([]float32, len(ratings))
	err := parallel.For(newCtx, len(ratings), e.Jobs, func(i int) {
		predictions[i] = predictor.Predict(ratings[i].UserId, ratings[i].ItemId)
		actuals[i] = ratings[i].Value
	})
	if err != nil {
		span.Fail(err)
		return nil, errors.Trace(err)
	}
	if report.RMSE, err = RMSE(predictions, actuals); err != nil {
		span.Fail(err)
		return nil, errors.Trace(err)
	}
	if report.MAE, err = MAE(predictions, actuals); err != nil {
		span.Fail(err)
		return nil, errors.Trace(err)
	}
	report.NumRatings = len(ratings)
	span.Add(1)

	// ranking quality
	results, skipped, err := e.rank(newCtx, predictor)
	if err != nil {
		span.Fail(err)
		return nil, errors.Trace(err)
	}
	report.SkippedUsers = skipped
	report.NumUsers = len(results)
	if len(results) == 0 {
		log.Logger().Warn("no user with relevant movies, skip ranking metrics",
			zap.Float32("threshold", e.Threshold))
	} else {
		for _, k := range e.Ks {
			score := KScore{K: k}
			if score.Precision, err = PrecisionAtK(results, k); err != nil {
				return nil, errors.Trace(err)
			}
			if score.Recall, err = RecallAtK(results, k); err != nil {
				return nil, errors.Trace(err)
			}
			if score.NDCG, err = NDCGAtK(results, k); err != nil {
				return nil, errors.Trace(err)
			}
			report.AtK = append(report.AtK, score)
		}
	}
	span.End()

	fields := []zap.Field{
		zap.Float32("RMSE", report.RMSE),
		zap.Float32("MAE", report.MAE),
		zap.Int("n_ratings", report.NumRatings),
		zap.Int("n_users", report.NumUsers),
		zap.Int("n_skipped", report.SkippedUsers),
		zap.String("eval_time", time.Since(startTime).String()),
	}
	for _, score := range report.AtK {
		fields = append(fields,
			zap.Float32(fmt.Sprintf("Precision@%v", score.K), score.Precision),
			zap.Float32(fmt.Sprintf("Recall@%v", score.K), score.Recall),
			zap.Float32(fmt.Sprintf("NDCG@%v", score.K), score.NDCG))
	}
	log.Logger().Info("evaluate complete", fields...)
	return report, nil
}

// rank recommends max(Ks) movies to every test user with relevant movies.
func (e *Evaluator) rank(ctx context.Context, predictor model.Predictor) (map[string]UserResult, int, error) {
	topN := slices.Max(e.Ks)
	recommender := recommend.New(e.Train)
	userIds := e.Test.AllUserIds()
	userResults := make([]*UserResult, len(userIds))
	skipped := make([]bool, len(userIds))
	err := parallel.Parallel(ctx, len(userIds), e.Jobs, func(_, jobId int) error {
		userId := userIds[jobId]
		actual := mapset.NewThreadUnsafeSet[string]()
		for itemId, rating := range e.Test.UserRatings(userId) {
			if rating >= e.Threshold {
				actual.Add(itemId)
			}
		}
		if actual.Cardinality() == 0 {
			return nil
		}
		recommendation, err := recommender.Recommend(userId, topN, predictor)
		if errors.Is(err, recommend.ErrUnknownUser) {
			skipped[jobId] = true
			return nil
		} else if err != nil {
			return errors.Trace(err)
		}
		userResults[jobId] = &UserResult{Actual: actual, Predicted: recommendation.ItemIds()}
		return nil
	})
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	results := make(map[string]UserResult)
	numSkipped := 0
	for i, userId := range userIds {
		if skipped[i] {
			numSkipped++
		} else if userResults[i] != nil {
			results[userId] = *userResults[i]
		}
	}
	return results, numSkipped, nil
}
