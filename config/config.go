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

// Package config loads the settings of movierec from a TOML or YAML file and
// MOVIEREC_ environment variables.
package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/movierec/dataset"
	"github.com/gorse-io/movierec/model"
	"github.com/gorse-io/movierec/model/cf"
	"github.com/gorse-io/movierec/model/knn"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const (
	ModelSVD     = "svd"
	ModelUserKNN = "user_knn"
	ModelItemKNN = "item_knn"
)

// Config is the configuration for movierec.
type Config struct {
	Rating    RatingConfig    `mapstructure:"rating"`
	Split     SplitConfig     `mapstructure:"split"`
	Model     ModelConfig     `mapstructure:"model"`
	Neighbors NeighborsConfig `mapstructure:"neighbors"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Evaluate  EvaluateConfig  `mapstructure:"evaluate"`
	Tune      TuneConfig      `mapstructure:"tune"`
}

// RatingConfig describes the rating file and the rating scale.
type RatingConfig struct {
	dataset.Scale `mapstructure:",squash"`
	Path          string `mapstructure:"path"`
	Sep           string `mapstructure:"sep" validate:"required"`
	Header        bool   `mapstructure:"header"`
}

type SplitConfig struct {
	TestFraction float64 `mapstructure:"test_fraction" validate:"gt=0,lt=1"`
	Seed         int64   `mapstructure:"seed"`
}

type ModelConfig struct {
	Type        string  `mapstructure:"type" validate:"oneof=svd user_knn item_knn"`
	NFactors    int     `mapstructure:"n_factors" validate:"gt=0"`
	NEpochs     int     `mapstructure:"n_epochs" validate:"gt=0"`
	Lr          float32 `mapstructure:"lr" validate:"gt=0"`
	Reg         float32 `mapstructure:"reg" validate:"gte=0"`
	InitStdDev  float32 `mapstructure:"init_std_dev" validate:"gte=0"`
	RandomState int64   `mapstructure:"random_state"`
	Jobs        int     `mapstructure:"jobs" validate:"gt=0"`
	Verbose     int     `mapstructure:"verbose" validate:"gte=0"`
}

type NeighborsConfig struct {
	K         int    `mapstructure:"k" validate:"gt=0"`
	Metric    string `mapstructure:"metric" validate:"oneof=cosine pearson"`
	MinCommon int    `mapstructure:"min_common" validate:"gte=1"`
	Size      int    `mapstructure:"size" validate:"gte=0"`
	Jobs      int    `mapstructure:"jobs" validate:"gt=0"`
}

type RecommendConfig struct {
	TopN   int    `mapstructure:"top_n" validate:"gt=0"`
	Jobs   int    `mapstructure:"jobs" validate:"gt=0"`
	Filter string `mapstructure:"filter"`
}

type EvaluateConfig struct {
	Ks        []int   `mapstructure:"ks" validate:"min=1,dive,gt=0"`
	Threshold float32 `mapstructure:"threshold"`
	Jobs      int     `mapstructure:"jobs" validate:"gt=0"`
}

// TuneConfig is the search space of hyper-parameters. Empty lists fall back to
// the default grid of SVD.
type TuneConfig struct {
	Trials   int       `mapstructure:"trials" validate:"gt=0"`
	Seed     int64     `mapstructure:"seed"`
	NFactors []int     `mapstructure:"n_factors" validate:"dive,gt=0"`
	Lr       []float32 `mapstructure:"lr" validate:"dive,gt=0"`
	Reg      []float32 `mapstructure:"reg" validate:"dive,gte=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Rating: RatingConfig{
			Scale: dataset.DefaultScale,
			Sep:   ",",
		},
		Split: SplitConfig{
			TestFraction: 0.2,
			Seed:         0,
		},
		Model: ModelConfig{
			Type:       ModelSVD,
			NFactors:   100,
			NEpochs:    20,
			Lr:         0.005,
			Reg:        0.02,
			InitStdDev: 0.1,
			Jobs:       1,
			Verbose:    10,
		},
		Neighbors: NeighborsConfig{
			K:         knn.DefaultNeighbors,
			Metric:    string(knn.Cosine),
			MinCommon: 1,
			Jobs:      1,
		},
		Recommend: RecommendConfig{
			TopN: 10,
			Jobs: 1,
		},
		Evaluate: EvaluateConfig{
			Ks:        []int{5, 10},
			Threshold: 4,
			Jobs:      1,
		},
		Tune: TuneConfig{
			Trials: 10,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [rating]
	v.SetDefault("rating.min", defaultConfig.Rating.Min)
	v.SetDefault("rating.max", defaultConfig.Rating.Max)
	v.SetDefault("rating.path", defaultConfig.Rating.Path)
	v.SetDefault("rating.sep", defaultConfig.Rating.Sep)
	v.SetDefault("rating.header", defaultConfig.Rating.Header)
	// [split]
	v.SetDefault("split.test_fraction", defaultConfig.Split.TestFraction)
	v.SetDefault("split.seed", defaultConfig.Split.Seed)
	// [model]
	v.SetDefault("model.type", defaultConfig.Model.Type)
	v.SetDefault("model.n_factors", defaultConfig.Model.NFactors)
	v.SetDefault("model.n_epochs", defaultConfig.Model.NEpochs)
	v.SetDefault("model.lr", defaultConfig.Model.Lr)
	v.SetDefault("model.reg", defaultConfig.Model.Reg)
	v.SetDefault("model.init_std_dev", defaultConfig.Model.InitStdDev)
	v.SetDefault("model.random_state", defaultConfig.Model.RandomState)
	v.SetDefault("model.jobs", defaultConfig.Model.Jobs)
	v.SetDefault("model.verbose", defaultConfig.Model.Verbose)
	// [neighbors]
	v.SetDefault("neighbors.k", defaultConfig.Neighbors.K)
	v.SetDefault("neighbors.metric", defaultConfig.Neighbors.Metric)
	v.SetDefault("neighbors.min_common", defaultConfig.Neighbors.MinCommon)
	v.SetDefault("neighbors.size", defaultConfig.Neighbors.Size)
	v.SetDefault("neighbors.jobs", defaultConfig.Neighbors.Jobs)
	// [recommend]
	v.SetDefault("recommend.top_n", defaultConfig.Recommend.TopN)
	v.SetDefault("recommend.jobs", defaultConfig.Recommend.Jobs)
	v.SetDefault("recommend.filter", defaultConfig.Recommend.Filter)
	// [evaluate]
	v.SetDefault("evaluate.ks", defaultConfig.Evaluate.Ks)
	v.SetDefault("evaluate.threshold", defaultConfig.Evaluate.Threshold)
	v.SetDefault("evaluate.jobs", defaultConfig.Evaluate.Jobs)
	// [tune]
	v.SetDefault("tune.trials", defaultConfig.Tune.Trials)
	v.SetDefault("tune.seed", defaultConfig.Tune.Seed)
	v.SetDefault("tune.n_factors", defaultConfig.Tune.NFactors)
	v.SetDefault("tune.lr", defaultConfig.Tune.Lr)
	v.SetDefault("tune.reg", defaultConfig.Tune.Reg)
}

// LoadConfig loads configuration from a TOML or YAML file. An empty path loads
// defaults. Environment variables such as MOVIEREC_MODEL_N_FACTORS override
// values in the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix("MOVIEREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "read config %s", path)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks constraints in struct tags.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "config")
	}
	return nil
}

// GetParams returns hyper-parameters of SVD.
func (c *ModelConfig) GetParams() model.Params {
	return model.Params{
		model.NFactors:    c.NFactors,
		model.NEpochs:     c.NEpochs,
		model.Lr:          c.Lr,
		model.Reg:         c.Reg,
		model.InitStdDev:  c.InitStdDev,
		model.RandomState: c.RandomState,
	}
}

func (c *ModelConfig) GetFitConfig() *cf.FitConfig {
	return cf.NewFitConfig().SetJobs(c.Jobs).SetVerbose(c.Verbose)
}

func (c *NeighborsConfig) GetIndexConfig(target knn.Target) *knn.IndexConfig {
	return &knn.IndexConfig{
		Target:    target,
		Metric:    knn.Metric(c.Metric),
		MinCommon: c.MinCommon,
		Size:      c.Size,
		Jobs:      c.Jobs,
	}
}

// GetParamsGrid returns the grid of hyper-parameters. Dimensions left empty
// take values from the default grid of SVD.
func (c *TuneConfig) GetParamsGrid() model.ParamsGrid {
	grid := cf.NewSVD(nil).GetParamsGrid()
	if len(c.NFactors) > 0 {
		grid[model.NFactors] = toInterfaces(c.NFactors)
	}
	if len(c.Lr) > 0 {
		grid[model.Lr] = toInterfaces(c.Lr)
	}
	if len(c.Reg) > 0 {
		grid[model.Reg] = toInterfaces(c.Reg)
	}
	return grid
}

func toInterfaces[T any](values []T) []interface{} {
	result := make([]interface{}, len(values))
	for i, value := range values {
		result[i] = value
	}
	return result
}
