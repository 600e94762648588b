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
	"fmt"
	"strings"

	"github.com/gorse-io/movierec/base/log"
	"github.com/gorse-io/movierec/base/progress"
	"github.com/gorse-io/movierec/recommend"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRecommendCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend unrated movies to a user or to all users.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return errors.Trace(err)
			}
			if cmd.Flags().Changed("top-n") {
				conf.Recommend.TopN, _ = cmd.Flags().GetInt("top-n")
			}
			if cmd.Flags().Changed("filter") {
				conf.Recommend.Filter, _ = cmd.Flags().GetString("filter")
			}
			store, err := loadRatings(conf)
			if err != nil {
				return errors.Trace(err)
			}
			tracer := progress.NewTracer("movierec")
			ctx, span := tracer.Start(cmd.Context(), "recommend", 2)
			predictor, err := newPredictor(ctx, conf, store, nil)
			if err != nil {
				span.Fail(err)
				return errors.Trace(err)
			}
			span.Add(1)
			recommender := recommend.New(store)
			if conf.Recommend.Filter != "" {
				filter, err := recommend.NewFilter(conf.Recommend.Filter)
				if err != nil {
					return errors.Trace(err)
				}
				recommender = recommender.WithFilter(filter)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			if cmd.Flags().Changed("user") {
				userId, _ := cmd.Flags().GetString("user")
				recommendation, err := recommender.Recommend(userId, conf.Recommend.TopN, predictor)
				if err != nil {
					span.Fail(err)
					return errors.Trace(err)
				}
				table.Header("rank", "movie", "score")
				for i, item := range recommendation.Items {
					if err = table.Append([]string{fmt.Sprint(i + 1), item.ItemId, fmt.Sprintf("%.4f", item.Score)}); err != nil {
						return errors.Trace(err)
					}
				}
			} else {
				userIds := store.AllUserIds()
				watcher := watchProgress(tracer, "RecommendAll", cmd.ErrOrStderr())
				recommendations, err := recommender.RecommendAll(ctx, userIds, conf.Recommend.TopN, predictor, conf.Recommend.Jobs)
				watcher.Stop()
				if err != nil {
					span.Fail(err)
					return errors.Trace(err)
				}
				table.Header("user", "movies")
				for _, userId := range userIds {
					movies := strings.Join(recommendations[userId].ItemIds(), ",")
					if err = table.Append([]string{userId, movies}); err != nil {
						return errors.Trace(err)
					}
				}
			}
			span.End()
			log.Logger().Info("recommend complete", zap.Int("n", conf.Recommend.TopN), zap.String("model", conf.Model.Type))
			return table.Render()
		},
	}
	command.Flags().String("user", "", "recommend to a single user")
	command.Flags().IntP("top-n", "n", 10, "number of recommended movies")
	command.Flags().String("model", "svd", "model: svd, user_knn or item_knn")
	command.Flags().String("filter", "", "expression dropping candidates, e.g. raters >= 5")
	return command
}
