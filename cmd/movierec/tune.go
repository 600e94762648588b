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

	"github.com/gorse-io/movierec/base/log"
	"github.com/gorse-io/movierec/model"
	"github.com/gorse-io/movierec/model/cf"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTuneCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "tune",
		Short: "Search hyper-parameters of SVD on held-out ratings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return errors.Trace(err)
			}
			if cmd.Flags().Changed("trials") {
				conf.Tune.Trials, _ = cmd.Flags().GetInt("trials")
			}
			store, err := loadRatings(conf)
			if err != nil {
				return errors.Trace(err)
			}
			train, test, err := store.Split(conf.Split.TestFraction, conf.Split.Seed)
			if err != nil {
				return errors.Trace(err)
			}
			var results *cf.SearchResult
			if grid, _ := cmd.Flags().GetBool("grid"); grid {
				results, err = cf.GridSearchCV(cmd.Context(), train, test, conf.Model.GetParams(),
					conf.Tune.GetParamsGrid(), conf.Model.GetFitConfig())
			} else {
				results, err = cf.TPESearch(cmd.Context(), train, test, conf.Model.GetParams(),
					conf.Tune.Trials, conf.Tune.Seed, conf.Model.GetFitConfig())
			}
			if err != nil {
				return errors.Trace(err)
			}
			log.Logger().Info("tune complete",
				zap.Float32("RMSE", results.BestScore),
				zap.Any("params", results.BestParams))

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("trial", "n_factors", "lr", "reg", "RMSE", "best")
			for i, params := range results.Params {
				best := ""
				if i == results.BestIndex {
					best = "*"
				}
				if err = table.Append([]string{
					fmt.Sprint(i + 1),
					fmt.Sprint(params[model.NFactors]),
					fmt.Sprint(params[model.Lr]),
					fmt.Sprint(params[model.Reg]),
					fmt.Sprintf("%.4f", results.Scores[i]),
					best,
				}); err != nil {
					return errors.Trace(err)
				}
			}
			return table.Render()
		},
	}
	command.Flags().Int("trials", 10, "number of trials of TPE search")
	command.Flags().Bool("grid", false, "search the whole grid instead of TPE")
	return command
}
