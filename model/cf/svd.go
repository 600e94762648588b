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

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	"github.com/gorse-io/movierec/base/log"
	"github.com/gorse-io/movierec/base/progress"
	"github.com/gorse-io/movierec/common/floats"
	"github.com/gorse-io/movierec/common/parallel"
	"github.com/gorse-io/movierec/dataset"
	"github.com/gorse-io/movierec/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// ErrInvalidHyperparameter is attached to errors caused by hyper-parameters out of range.
const ErrInvalidHyperparameter = errors.ConstError("invalid hyper-parameter")

type FitConfig struct {
	Jobs    int
	Verbose int
	// IndexSet holds users and movies indexed besides the training set,
	// usually the validation set. They stay unpredictable until trained.
	IndexSet *dataset.RatingStore
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) SetIndexSet(indexSet *dataset.RatingStore) *FitConfig {
	config.IndexSet = indexSet
	return config
}

// SVD is the biased matrix factorization trained by stochastic gradient descent:
//
//	\hat{r}_{ui} = \mu + b_u + b_i + p_u^T q_i
//
// The global mean \mu is fixed to the mean of training ratings. Users or movies
// absent from the training set are predicted as \mu.
type SVD struct {
	model.BaseModel
	UserIndex       *dataset.FreqDict
	ItemIndex       *dataset.FreqDict
	UserPredictable *bitset.BitSet
	ItemPredictable *bitset.BitSet
	// Model parameters
	UserFactor [][]float32 // p_u
	ItemFactor [][]float32 // q_i
	UserBias   []float32   // b_u
	ItemBias   []float32   // b_i
	GlobalMean float32     // mu
	Scale      dataset.Scale
	// Hyper parameters
	nFactors   int
	nEpochs    int
	lr         float32
	reg        float32
	initMean   float32
	initStdDev float32
}

// NewSVD creates a SVD model.
func NewSVD(params model.Params) *SVD {
	svd := new(SVD)
	svd.SetParams(params)
	return svd
}

// Train fits a SVD model with the given hyper-parameters.
func Train(ctx context.Context, trainSet *dataset.RatingStore, factors int, lr, reg float32, epochs int, seed int64) (*SVD, error) {
	svd := NewSVD(model.Params{
		model.NFactors:    factors,
		model.Lr:          lr,
		model.Reg:         reg,
		model.NEpochs:     epochs,
		model.RandomState: seed,
	})
	if err := svd.Fit(ctx, trainSet, NewFitConfig()); err != nil {
		return nil, errors.Trace(err)
	}
	return svd, nil
}

// SetParams sets hyper-parameters of the SVD model.
func (svd *SVD) SetParams(params model.Params) {
	svd.BaseModel.SetParams(params)
	svd.nFactors = svd.Params.GetInt(model.NFactors, 100)
	svd.nEpochs = svd.Params.GetInt(model.NEpochs, 20)
	svd.lr = svd.Params.GetFloat32(model.Lr, 0.005)
	svd.reg = svd.Params.GetFloat32(model.Reg, 0.02)
	svd.initMean = svd.Params.GetFloat32(model.InitMean, 0)
	svd.initStdDev = svd.Params.GetFloat32(model.InitStdDev, 0.1)
}

// GetParamsGrid returns the default search space.
func (svd *SVD) GetParamsGrid() model.ParamsGrid {
	return model.ParamsGrid{
		model.NFactors: []interface{}{50, 100, 150},
		model.Lr:       []interface{}{0.002, 0.005, 0.01},
		model.Reg:      []interface{}{0.02, 0.05, 0.1},
	}
}

func (svd *SVD) NumFactors() int {
	return svd.nFactors
}

// GlobalBias returns the mean of training ratings.
func (svd *SVD) GlobalBias() float32 {
	return svd.GlobalMean
}

func (svd *SVD) validate() error {
	if svd.nFactors <= 0 {
		return errors.WithType(errors.NotValidf("number of factors %d", svd.nFactors), ErrInvalidHyperparameter)
	}
	if !(svd.lr > 0) {
		return errors.WithType(errors.NotValidf("learning rate %v", svd.lr), ErrInvalidHyperparameter)
	}
	if !(svd.reg >= 0) {
		return errors.WithType(errors.NotValidf("regularization %v", svd.reg), ErrInvalidHyperparameter)
	}
	if svd.nEpochs <= 0 {
		return errors.WithType(errors.NotValidf("number of epochs %d", svd.nEpochs), ErrInvalidHyperparameter)
	}
	if !(svd.initStdDev >= 0) {
		return errors.WithType(errors.NotValidf("standard deviation of initial factors %v", svd.initStdDev), ErrInvalidHyperparameter)
	}
	return nil
}

// Clear model weights.
func (svd *SVD) Clear() {
	svd.UserIndex = nil
	svd.ItemIndex = nil
	svd.UserPredictable = nil
	svd.ItemPredictable = nil
	svd.UserFactor = nil
	svd.ItemFactor = nil
	svd.UserBias = nil
	svd.ItemBias = nil
	svd.GlobalMean = 0
}

// Invalid returns true if the model has not been fitted.
func (svd *SVD) Invalid() bool {
	return svd == nil || svd.UserIndex == nil || svd.ItemIndex == nil
}

// IsUserPredictable returns false if the user has no rating in the training set.
func (svd *SVD) IsUserPredictable(userId string) bool {
	if svd.Invalid() {
		return false
	}
	userIndex, ok := svd.UserIndex.Lookup(userId)
	return ok && svd.UserPredictable.Test(uint(userIndex))
}

// IsItemPredictable returns false if the movie has no rating in the training set.
func (svd *SVD) IsItemPredictable(itemId string) bool {
	if svd.Invalid() {
		return false
	}
	itemIndex, ok := svd.ItemIndex.Lookup(itemId)
	return ok && svd.ItemPredictable.Test(uint(itemIndex))
}

// GetUserFactor returns the latent factor of a user, or nil for cold users.
func (svd *SVD) GetUserFactor(userId string) []float32 {
	if !svd.IsUserPredictable(userId) {
		return nil
	}
	userIndex, _ := svd.UserIndex.Lookup(userId)
	return svd.UserFactor[userIndex]
}

// GetItemFactor returns the latent factor of a movie, or nil for cold movies.
func (svd *SVD) GetItemFactor(itemId string) []float32 {
	if !svd.IsItemPredictable(itemId) {
		return nil
	}
	itemIndex, _ := svd.ItemIndex.Lookup(itemId)
	return svd.ItemFactor[itemIndex]
}

// ValidateUser always succeeds since cold users fall back to the global mean.
func (svd *SVD) ValidateUser(string) error {
	return nil
}

// Predict the rating given by a user to a movie, clipped to the rating scale.
func (svd *SVD) Predict(userId, itemId string) float32 {
	if svd.Invalid() {
		return svd.GlobalMean
	}
	userIndex, okUser := svd.UserIndex.Lookup(userId)
	itemIndex, okItem := svd.ItemIndex.Lookup(itemId)
	if !okUser || !okItem ||
		!svd.UserPredictable.Test(uint(userIndex)) || !svd.ItemPredictable.Test(uint(itemIndex)) {
		return svd.GlobalMean
	}
	return svd.Scale.Clip(svd.internalPredict(userIndex, itemIndex))
}

func (svd *SVD) internalPredict(userIndex, itemIndex int32) float32 {
	return svd.GlobalMean + svd.UserBias[userIndex] + svd.ItemBias[itemIndex] +
		floats.Dot(svd.UserFactor[userIndex], svd.ItemFactor[itemIndex])
}

// Init builds indices and initializes weights from the training set. Users and
// movies only found in indexSet are indexed but not predictable.
func (svd *SVD) Init(trainSet, indexSet *dataset.RatingStore) {
	svd.ResetRandomGenerator()
	svd.UserIndex = dataset.NewFreqDict()
	svd.ItemIndex = dataset.NewFreqDict()
	for _, r := range trainSet.Ratings() {
		svd.UserIndex.Id(r.UserId)
		svd.ItemIndex.Id(r.ItemId)
	}
	if indexSet != nil {
		for _, userId := range indexSet.AllUserIds() {
			svd.UserIndex.NotCount(userId)
		}
		for _, itemId := range indexSet.AllItemIds() {
			svd.ItemIndex.NotCount(itemId)
		}
	}
	svd.UserPredictable = bitset.New(uint(svd.UserIndex.Count()))
	for userIndex := 0; userIndex < svd.UserIndex.Count(); userIndex++ {
		if svd.UserIndex.Freq(int32(userIndex)) > 0 {
			svd.UserPredictable.Set(uint(userIndex))
		}
	}
	svd.ItemPredictable = bitset.New(uint(svd.ItemIndex.Count()))
	for itemIndex := 0; itemIndex < svd.ItemIndex.Count(); itemIndex++ {
		if svd.ItemIndex.Freq(int32(itemIndex)) > 0 {
			svd.ItemPredictable.Set(uint(itemIndex))
		}
	}
	svd.GlobalMean = trainSet.GlobalMean()
	svd.Scale = trainSet.Scale()
	rng := svd.GetRandomGenerator()
	svd.UserFactor = rng.NormalMatrix(svd.UserIndex.Count(), svd.nFactors, svd.initMean, svd.initStdDev)
	svd.ItemFactor = rng.NormalMatrix(svd.ItemIndex.Count(), svd.nFactors, svd.initMean, svd.initStdDev)
	svd.UserBias = make([]float32, svd.UserIndex.Count())
	svd.ItemBias = make([]float32, svd.ItemIndex.Count())
}

// sgd updates weights by a rating and returns the error before the update.
func (svd *SVD) sgd(userIndex, itemIndex int32, rating float32, buffer []float32) float32 {
	diff := rating - svd.internalPredict(userIndex, itemIndex)
	userFactor := svd.UserFactor[userIndex]
	itemFactor := svd.ItemFactor[itemIndex]
	// Update biases
	svd.UserBias[userIndex] += svd.lr * (diff - svd.reg*svd.UserBias[userIndex])
	svd.ItemBias[itemIndex] += svd.lr * (diff - svd.reg*svd.ItemBias[itemIndex])
	// Update user latent factor: p_u += lr (e q_i - reg p_u)
	copy(buffer, userFactor)
	floats.MulConst(userFactor, 1-svd.lr*svd.reg)
	floats.MulConstAdd(itemFactor, svd.lr*diff, userFactor)
	// Update item latent factor with the old user factor: q_i += lr (e p_u - reg q_i)
	floats.MulConst(itemFactor, 1-svd.lr*svd.reg)
	floats.MulConstAdd(buffer, svd.lr*diff, itemFactor)
	return diff
}

// trainingSet is the dense form of training ratings.
type trainingSet struct {
	users   []int32
	items   []int32
	ratings []float32
}

func (svd *SVD) densify(trainSet *dataset.RatingStore) *trainingSet {
	dense := &trainingSet{
		users:   make([]int32, 0, trainSet.Count()),
		items:   make([]int32, 0, trainSet.Count()),
		ratings: make([]float32, 0, trainSet.Count()),
	}
	for _, r := range trainSet.Ratings() {
		userIndex, _ := svd.UserIndex.Lookup(r.UserId)
		itemIndex, _ := svd.ItemIndex.Lookup(r.ItemId)
		dense.users = append(dense.users, userIndex)
		dense.items = append(dense.items, itemIndex)
		dense.ratings = append(dense.ratings, r.Value)
	}
	return dense
}

// Fit the SVD model. Every epoch visits all training ratings in a fresh random
// order. With more than one job, an epoch is split into stratified blocks so that
// concurrent workers never update the same user or movie.
func (svd *SVD) Fit(ctx context.Context, trainSet *dataset.RatingStore, config *FitConfig) error {
	if config == nil {
		config = NewFitConfig()
	}
	if err := svd.validate(); err != nil {
		return errors.Trace(err)
	}
	if trainSet.Count() == 0 {
		return errors.WithType(errors.NotValidf("training set without ratings"), dataset.ErrEmptyDataset)
	}
	log.Logger().Info("fit svd",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("n_users", trainSet.CountUsers()),
		zap.Int("n_items", trainSet.CountItems()),
		zap.Any("params", svd.GetParams()),
		zap.Any("config", config))
	svd.Init(trainSet, config.IndexSet)
	dense := svd.densify(trainSet)
	jobs := max(config.Jobs, 1)
	buffers := make([][]float32, jobs)
	for i := range buffers {
		buffers[i] = make([]float32, svd.nFactors)
	}
	rng := svd.GetRandomGenerator()

	_, span := progress.Start(ctx, "SVD.Fit", svd.nEpochs)
	for epoch := 1; epoch <= svd.nEpochs; epoch++ {
		fitStart := time.Now()
		perm := rng.Perm(len(dense.ratings))
		var (
			cost float32
			err  error
		)
		if jobs == 1 {
			cost, err = svd.fitEpoch(ctx, dense, perm, buffers[0])
		} else {
			cost, err = svd.fitStratifiedEpoch(ctx, dense, perm, jobs, buffers)
		}
		if err != nil {
			span.Fail(err)
			return errors.Trace(err)
		}
		if math32.IsNaN(cost) || math32.IsInf(cost, 0) {
			err = errors.WithType(errors.NotValidf("training diverged at epoch %d with learning rate %v", epoch, svd.lr),
				ErrInvalidHyperparameter)
			span.Fail(err)
			svd.Clear()
			return err
		}
		if config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == svd.nEpochs) {
			log.Logger().Info(fmt.Sprintf("fit svd %v/%v", epoch, svd.nEpochs),
				zap.String("fit_time", time.Since(fitStart).String()),
				zap.Float32("RMSE", math32.Sqrt(cost/float32(len(dense.ratings)))))
		}
		span.Add(1)
	}
	span.End()
	log.Logger().Info("fit svd complete", zap.Float32("global_mean", svd.GlobalMean))
	return nil
}

func (svd *SVD) fitEpoch(ctx context.Context, dense *trainingSet, perm []int, buffer []float32) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var cost float32
	for _, j := range perm {
		diff := svd.sgd(dense.users[j], dense.items[j], dense.ratings[j], buffer)
		cost += diff * diff
	}
	return cost, nil
}

// fitStratifiedEpoch runs an epoch as jobs sub-epochs. Users and movies are hashed
// into jobs blocks. In sub-epoch s, job w updates ratings in block
// (w, (w+s) mod jobs), so jobs of a sub-epoch touch disjoint rows. Each block is
// visited in the order of perm, which keeps the result independent of scheduling.
func (svd *SVD) fitStratifiedEpoch(ctx context.Context, dense *trainingSet, perm []int, jobs int, buffers [][]float32) (float32, error) {
	blocks := make([][][]int, jobs)
	for w := range blocks {
		blocks[w] = make([][]int, jobs)
	}
	for _, j := range perm {
		userBlock := int(dense.users[j]) % jobs
		itemBlock := int(dense.items[j]) % jobs
		blocks[userBlock][itemBlock] = append(blocks[userBlock][itemBlock], j)
	}
	costs := make([]float32, jobs)
	for s := 0; s < jobs; s++ {
		err := parallel.Parallel(ctx, jobs, jobs, func(_, w int) error {
			for _, j := range blocks[w][(w+s)%jobs] {
				diff := svd.sgd(dense.users[j], dense.items[j], dense.ratings[j], buffers[w])
				costs[w] += diff * diff
			}
			return nil
		})
		if err != nil {
			return 0, errors.Trace(err)
		}
	}
	return floats.Sum(costs), nil
}

var _ model.Model = (*SVD)(nil)

