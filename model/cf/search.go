// Copyright 2022 gorse Project Authors
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

package cf

import (
	"context"
	"fmt"
	"time"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/gorse-io/movierec/base/log"
	"github.com/gorse-io/movierec/base/progress"
	"github.com/gorse-io/movierec/dataset"
	"github.com/gorse-io/movierec/eval"
	"github.com/gorse-io/movierec/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// SearchResult contains the return of hyper-parameter search. Scores are RMSE
// on the validation set, so lower is better.
type SearchResult struct {
	BestModel  *SVD
	BestScore  float32
	BestParams model.Params
	BestIndex  int
	Scores     []float32
	Params     []model.Params
}

// AddScore records a trial and keeps m if it is the best so far.
func (r *SearchResult) AddScore(params model.Params, score float32, m *SVD) {
	r.Scores = append(r.Scores, score)
	r.Params = append(r.Params, params.Copy())
	if len(r.Scores) == 1 || score < r.BestScore {
		r.BestScore = score
		r.BestParams = params.Copy()
		r.BestIndex = len(r.Params) - 1
		r.BestModel = m
	}
}

// Score computes RMSE of a model on the validation set.
func Score(m model.Predictor, validSet *dataset.RatingStore) (float32, error) {
	ratings := validSet.Ratings()
	predictions := make([]float32, len(ratings))
	actuals := make([]float32, len(ratings))
	for i, r := range ratings {
		predictions[i] = m.Predict(r.UserId, r.ItemId)
		actuals[i] = r.Value
	}
	return eval.RMSE(predictions, actuals)
}

func fitAndScore(ctx context.Context, params model.Params, trainSet, validSet *dataset.RatingStore, fitConfig *FitConfig) (*SVD, float32, error) {
	config := NewFitConfig()
	if fitConfig != nil {
		*config = *fitConfig
	}
	config.SetIndexSet(validSet)
	svd := NewSVD(params)
	if err := svd.Fit(ctx, trainSet, config); err != nil {
		return nil, 0, errors.Trace(err)
	}
	score, err := Score(svd, validSet)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	return svd, score, nil
}

// GridSearchCV fits a SVD model for every point of the grid on top of the base
// hyper-parameters and keeps the one with the lowest validation RMSE.
func GridSearchCV(ctx context.Context, trainSet, validSet *dataset.RatingStore, base model.Params, grid model.ParamsGrid,
	fitConfig *FitConfig) (*SearchResult, error) {
	combinations := grid.Combinations()
	total := len(combinations)
	results := &SearchResult{
		Scores: make([]float32, 0, total),
		Params: make([]model.Params, 0, total),
	}
	newCtx, span := progress.Start(ctx, "GridSearchCV", total)
	for i, params := range combinations {
		log.Logger().Info(fmt.Sprintf("grid search %v/%v", i+1, total), zap.Any("params", params))
		svd, score, err := fitAndScore(newCtx, base.Overwrite(params), trainSet, validSet, fitConfig)
		if err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		results.AddScore(params, score, svd)
		span.Add(1)
	}
	span.End()
	return results, nil
}

// SuggestParams samples SVD hyper-parameters for a trial.
func SuggestParams(trial goptuna.Trial) model.Params {
	return model.Params{
		model.NFactors: int(lo.Must(trial.SuggestDiscreteFloat(string(model.NFactors), 10, 150, 10))),
		model.Lr:       lo.Must(trial.SuggestLogFloat(string(model.Lr), 0.001, 0.05)),
		model.Reg:      lo.Must(trial.SuggestLogFloat(string(model.Reg), 0.005, 0.2)),
	}
}

// TPESearch searches hyper-parameters by the tree-structured Parzen estimator,
// minimizing validation RMSE.
func TPESearch(ctx context.Context, trainSet, validSet *dataset.RatingStore, base model.Params, numTrials int, seed int64,
	fitConfig *FitConfig) (*SearchResult, error) {
	if numTrials <= 0 {
		return nil, errors.NotValidf("number of trials %d", numTrials)
	}
	study, err := goptuna.CreateStudy("movierec-svd",
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize),
		goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(seed))))
	if err != nil {
		return nil, errors.Trace(err)
	}
	results := &SearchResult{
		Scores: make([]float32, 0, numTrials),
		Params: make([]model.Params, 0, numTrials),
	}
	newCtx, span := progress.Start(ctx, "TPESearch", numTrials)
	var objectiveErr error
	objective := func(trial goptuna.Trial) (float64, error) {
		params := SuggestParams(trial)
		log.Logger().Info(fmt.Sprintf("tpe search %v/%v", span.Count()+1, numTrials), zap.Any("params", params))
		svd, score, err := fitAndScore(newCtx, base.Overwrite(params), trainSet, validSet, fitConfig)
		if err != nil {
			objectiveErr = errors.Trace(err)
			return 0, objectiveErr
		}
		results.AddScore(params, score, svd)
		span.Add(1)
		return float64(score), nil
	}
	startTime := time.Now()
	if err = study.Optimize(objective, numTrials); err == nil {
		err = objectiveErr
	}
	if err != nil {
		span.Fail(err)
		return nil, errors.Trace(err)
	}
	span.End()
	log.Logger().Info("complete tpe search",
		zap.Float32("RMSE", results.BestScore),
		zap.Any("params", results.BestParams),
		zap.String("search_time", time.Since(startTime).String()))
	return results, nil
}
