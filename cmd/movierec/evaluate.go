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

	"github.com/gorse-io/movierec/eval"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newEvaluateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a model on held-out ratings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return errors.Trace(err)
			}
			store, err := loadRatings(conf)
			if err != nil {
				return errors.Trace(err)
			}
			train, test, err := store.Split(conf.Split.TestFraction, conf.Split.Seed)
			if err != nil {
				return errors.Trace(err)
			}
			predictor, err := newPredictor(cmd.Context(), conf, train, test)
			if err != nil {
				return errors.Trace(err)
			}
			evaluator := eval.NewEvaluator(train, test)
			evaluator.Ks = conf.Evaluate.Ks
			evaluator.Threshold = conf.Evaluate.Threshold
			evaluator.Jobs = conf.Evaluate.Jobs
			report, err := evaluator.Evaluate(cmd.Context(), predictor)
			if err != nil {
				return errors.Trace(err)
			}
			return errors.Trace(renderReport(cmd, conf.Model.Type, report))
		},
	}
	command.Flags().String("model", "svd", "model: svd, user_knn or item_knn")
	return command
}

func renderReport(cmd *cobra.Command, modelType string, report *eval.Report) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("metric", modelType)
	rows := [][]string{
		{"RMSE", fmt.Sprintf("%.4f", report.RMSE)},
		{"MAE", fmt.Sprintf("%.4f", report.MAE)},
	}
	for _, score := range report.AtK {
		rows = append(rows,
			[]string{fmt.Sprintf("Precision@%d", score.K), fmt.Sprintf("%.4f", score.Precision)},
			[]string{fmt.Sprintf("Recall@%d", score.K), fmt.Sprintf("%.4f", score.Recall)},
			[]string{fmt.Sprintf("NDCG@%d", score.K), fmt.Sprintf("%.4f", score.NDCG)})
	}
	rows = append(rows,
		[]string{"#ratings", fmt.Sprint(report.NumRatings)},
		[]string{"#users", fmt.Sprint(report.NumUsers)},
		[]string{"#skipped", fmt.Sprint(report.SkippedUsers)})
	if err := table.Bulk(rows); err != nil {
		return errors.Trace(err)
	}
	return table.Render()
}
