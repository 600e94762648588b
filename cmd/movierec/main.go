// Copyright 2025 gorse Project Authors
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

package main

import (
	"context"

	"github.com/gorse-io/movierec/base/log"
	"github.com/gorse-io/movierec/config"
	"github.com/gorse-io/movierec/dataset"
	"github.com/gorse-io/movierec/model"
	"github.com/gorse-io/movierec/model/cf"
	"github.com/gorse-io/movierec/model/knn"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "movierec",
		Short:         "Collaborative filtering movie recommender.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			debug, _ := cmd.Flags().GetBool("debug")
			log.SetLogger(cmd.Flags(), debug)
		},
	}
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.PersistentFlags().String("ratings", "", "path of the rating file")
	rootCommand.PersistentFlags().String("sep", ",", "separator of the rating file")
	rootCommand.PersistentFlags().Bool("header", false, "skip the first line of the rating file")
	rootCommand.AddCommand(
		newRecommendCommand(),
		newSimilarCommand(),
		newEvaluateCommand(),
		newTuneCommand(),
		newVersionCommand(),
	)
	return rootCommand
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}

// loadConfig loads the configuration file and applies flags over it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cmd.Flags().Changed("ratings") {
		conf.Rating.Path, _ = cmd.Flags().GetString("ratings")
	}
	if cmd.Flags().Changed("sep") {
		conf.Rating.Sep, _ = cmd.Flags().GetString("sep")
	}
	if cmd.Flags().Changed("header") {
		conf.Rating.Header, _ = cmd.Flags().GetBool("header")
	}
	if cmd.Flags().Lookup("model") != nil && cmd.Flags().Changed("model") {
		conf.Model.Type, _ = cmd.Flags().GetString("model")
	}
	if err = conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return conf, nil
}

// loadRatings reads the rating file into a store. Ratings out of the scale are
// dropped with a warning.
func loadRatings(conf *config.Config) (*dataset.RatingStore, error) {
	if conf.Rating.Path == "" {
		return nil, errors.NotValidf("empty path of rating file")
	}
	ratings, err := dataset.LoadRatingsCSV(conf.Rating.Path, conf.Rating.Sep, conf.Rating.Header)
	if err != nil {
		return nil, errors.Trace(err)
	}
	valid := lo.Filter(ratings, func(r dataset.Rating, _ int) bool {
		return conf.Rating.Scale.Contains(r.Value)
	})
	if len(valid) < len(ratings) {
		log.Logger().Warn("drop ratings out of scale",
			zap.Int("n_dropped", len(ratings)-len(valid)),
			zap.Float32("min", conf.Rating.Min),
			zap.Float32("max", conf.Rating.Max))
	}
	store := dataset.NewRatingStore(conf.Rating.Scale)
	if err = store.Ingest(valid); err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("load ratings",
		zap.String("path", conf.Rating.Path),
		zap.Int("n_ratings", store.Count()),
		zap.Int("n_users", store.CountUsers()),
		zap.Int("n_items", store.CountItems()))
	return store, nil
}

// newPredictor trains the configured model on the training set. Users and movies
// of the optional test set are indexed by the SVD model.
func newPredictor(ctx context.Context, conf *config.Config, train, test *dataset.RatingStore) (model.Predictor, error) {
	switch conf.Model.Type {
	case config.ModelSVD:
		svd := cf.NewSVD(conf.Model.GetParams())
		if err := svd.Fit(ctx, train, conf.Model.GetFitConfig().SetIndexSet(test)); err != nil {
			return nil, errors.Trace(err)
		}
		return svd, nil
	case config.ModelUserKNN:
		index, err := knn.NewSimilarityIndex(ctx, train, conf.Neighbors.GetIndexConfig(knn.Users))
		if err != nil {
			return nil, errors.Trace(err)
		}
		m, err := knn.NewUserBased(index, train, conf.Neighbors.K)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return m, nil
	case config.ModelItemKNN:
		index, err := knn.NewSimilarityIndex(ctx, train, conf.Neighbors.GetIndexConfig(knn.Items))
		if err != nil {
			return nil, errors.Trace(err)
		}
		m, err := knn.NewItemBased(index, train, conf.Neighbors.K)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return m, nil
	default:
		return nil, errors.NotSupportedf("model %q", conf.Model.Type)
	}
}
