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

	"github.com/gorse-io/movierec/model/knn"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newSimilarCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "similar",
		Short: "Find nearest users of a user, or nearest movies of a movie.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				target knn.Target
				id     string
			)
			switch {
			case cmd.Flags().Changed("user") && cmd.Flags().Changed("item"):
				return errors.NotValidf("both --user and --item")
			case cmd.Flags().Changed("user"):
				target = knn.Users
				id, _ = cmd.Flags().GetString("user")
			case cmd.Flags().Changed("item"):
				target = knn.Items
				id, _ = cmd.Flags().GetString("item")
			default:
				return errors.NotValidf("neither --user nor --item")
			}
			conf, err := loadConfig(cmd)
			if err != nil {
				return errors.Trace(err)
			}
			if cmd.Flags().Changed("metric") {
				conf.Neighbors.Metric, _ = cmd.Flags().GetString("metric")
			}
			k, _ := cmd.Flags().GetInt("k")
			store, err := loadRatings(conf)
			if err != nil {
				return errors.Trace(err)
			}
			index, err := knn.NewSimilarityIndex(cmd.Context(), store, conf.Neighbors.GetIndexConfig(target))
			if err != nil {
				return errors.Trace(err)
			}
			neighbors, err := index.Neighbors(id, k)
			if err != nil {
				return errors.Trace(err)
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("rank", string(target), "similarity")
			for i, neighbor := range neighbors {
				if err = table.Append([]string{fmt.Sprint(i + 1), neighbor.Id, fmt.Sprintf("%.4f", neighbor.Score)}); err != nil {
					return errors.Trace(err)
				}
			}
			return table.Render()
		},
	}
	command.Flags().String("user", "", "find similar users of a user")
	command.Flags().String("item", "", "find similar movies of a movie")
	command.Flags().IntP("k", "k", knn.DefaultNeighbors, "number of neighbors")
	command.Flags().String("metric", "cosine", "similarity metric: cosine or pearson")
	return command
}
