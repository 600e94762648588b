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

package dataset

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gorse-io/movierec/base"
	"github.com/gorse-io/movierec/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// LoadRatingsCSV reads ratings from a csv file with columns
// userId, movieId, rating and an optional timestamp, either unix seconds or a
// datetime. Malformed rows are logged and skipped.
func LoadRatingsCSV(path, sep string, header bool) ([]Rating, error) {
	if sep == "" {
		return nil, errors.NotValidf("empty separator")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()

	var (
		ratings []Rating
		skipped int
	)
	err = base.ReadLines(bufio.NewScanner(file), sep, func(lineNumber int, fields []string) bool {
		if header && lineNumber == 0 {
			return true
		}
		rating, err := parseRating(fields)
		if err != nil {
			skipped++
			log.Logger().Warn("skip malformed rating",
				zap.String("path", path), zap.Int("line", lineNumber+1), zap.Error(err))
			return true
		}
		ratings = append(ratings, rating)
		return true
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("load ratings",
		zap.String("path", path), zap.Int("n_ratings", len(ratings)), zap.Int("n_skipped", skipped))
	return ratings, nil
}

func parseRating(fields []string) (Rating, error) {
	if len(fields) < 3 {
		return Rating{}, errors.NotValidf("%d fields", len(fields))
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 32)
	if err != nil {
		return Rating{}, errors.Trace(err)
	}
	rating := Rating{
		UserId: strings.TrimSpace(fields[0]),
		ItemId: strings.TrimSpace(fields[1]),
		Value:  float32(value),
	}
	if err = base.ValidateId(rating.UserId); err != nil {
		return Rating{}, errors.Trace(err)
	}
	if err = base.ValidateId(rating.ItemId); err != nil {
		return Rating{}, errors.Trace(err)
	}
	if len(fields) > 3 && strings.TrimSpace(fields[3]) != "" {
		timestamp, err := dateparse.ParseIn(strings.TrimSpace(fields[3]), time.UTC)
		if err != nil {
			return Rating{}, errors.Annotatef(err, "failed to parse datetime `%v`", fields[3])
		}
		rating.Timestamp = timestamp.UTC()
	}
	return rating, nil
}
