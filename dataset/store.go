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
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/movierec/base"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const (
	// ErrValidation is attached to every rejected rating or split argument.
	ErrValidation = errors.ConstError("validation failed")
	// ErrEmptyDataset is returned when training on a store without ratings.
	ErrEmptyDataset = errors.ConstError("empty dataset")
)

// Rating is the rating of a user on a movie. The timestamp is optional.
type Rating struct {
	UserId    string
	ItemId    string
	Value     float32
	Timestamp time.Time
}

// Scale is the closed interval of valid rating values.
type Scale struct {
	Min float32 `mapstructure:"min" validate:"ltfield=Max"`
	Max float32 `mapstructure:"max"`
}

// DefaultScale is the five stars scale of MovieLens.
var DefaultScale = Scale{Min: 1, Max: 5}

func (s Scale) Contains(v float32) bool {
	return !math32.IsNaN(v) && v >= s.Min && v <= s.Max
}

func (s Scale) Clip(v float32) float32 {
	return min(max(v, s.Min), s.Max)
}

type ratingKey struct {
	userId string
	itemId string
}

// RatingStore is the in-memory rating matrix. Each (user, movie) pair is stored
// at most once. A store is filled by Ingest and read-only afterwards, so it can
// be shared by concurrent readers.
type RatingStore struct {
	scale     Scale
	ratings   map[ratingKey]Rating
	userItems map[string]mapset.Set[string]
	itemUsers map[string]mapset.Set[string]
	userSum   map[string]float64
	itemSum   map[string]float64
	sum       float64
}

func NewRatingStore(scale Scale) *RatingStore {
	return &RatingStore{
		scale:     scale,
		ratings:   make(map[ratingKey]Rating),
		userItems: make(map[string]mapset.Set[string]),
		itemUsers: make(map[string]mapset.Set[string]),
		userSum:   make(map[string]float64),
		itemSum:   make(map[string]float64),
	}
}

// Ingest adds a batch of ratings. The whole batch is validated before the store
// is touched: if any rating has a blank id or a value outside the scale, nothing
// is inserted. A rating of a pair already present replaces the old one.
func (s *RatingStore) Ingest(ratings []Rating) error {
	for i, r := range ratings {
		if err := base.ValidateId(r.UserId); err != nil {
			return errors.WithType(errors.Annotatef(err, "user of rating #%d", i), ErrValidation)
		}
		if err := base.ValidateId(r.ItemId); err != nil {
			return errors.WithType(errors.Annotatef(err, "movie of rating #%d", i), ErrValidation)
		}
		if !s.scale.Contains(r.Value) {
			return errors.WithType(errors.NotValidf("rating %v of user %q on movie %q out of [%v, %v]",
				r.Value, r.UserId, r.ItemId, s.scale.Min, s.scale.Max), ErrValidation)
		}
	}
	for _, r := range ratings {
		s.add(r)
	}
	return nil
}

func (s *RatingStore) add(r Rating) {
	key := ratingKey{userId: r.UserId, itemId: r.ItemId}
	if old, exist := s.ratings[key]; exist {
		s.userSum[r.UserId] -= float64(old.Value)
		s.itemSum[r.ItemId] -= float64(old.Value)
		s.sum -= float64(old.Value)
	} else {
		if _, ok := s.userItems[r.UserId]; !ok {
			s.userItems[r.UserId] = mapset.NewThreadUnsafeSet[string]()
		}
		if _, ok := s.itemUsers[r.ItemId]; !ok {
			s.itemUsers[r.ItemId] = mapset.NewThreadUnsafeSet[string]()
		}
		s.userItems[r.UserId].Add(r.ItemId)
		s.itemUsers[r.ItemId].Add(r.UserId)
	}
	s.ratings[key] = r
	s.userSum[r.UserId] += float64(r.Value)
	s.itemSum[r.ItemId] += float64(r.Value)
	s.sum += float64(r.Value)
}

// Split partitions ratings into disjoint train and test stores. Ratings are
// enumerated ordered by (user, movie), shuffled by a generator seeded with seed
// and the first round(testFraction * n) ratings go to the test store.
func (s *RatingStore) Split(testFraction float64, seed int64) (train, test *RatingStore, err error) {
	if !(testFraction > 0 && testFraction < 1) {
		return nil, nil, errors.WithType(errors.NotValidf("test fraction %v out of (0, 1)", testFraction), ErrValidation)
	}
	ratings := s.Ratings()
	perm := base.NewRandomGenerator(seed).Perm(len(ratings))
	numTest := int(math.Round(testFraction * float64(len(ratings))))
	train, test = NewRatingStore(s.scale), NewRatingStore(s.scale)
	for i, j := range perm {
		if i < numTest {
			test.add(ratings[j])
		} else {
			train.add(ratings[j])
		}
	}
	return train, test, nil
}

func (s *RatingStore) Scale() Scale {
	return s.scale
}

// Count returns the number of ratings.
func (s *RatingStore) Count() int {
	return len(s.ratings)
}

func (s *RatingStore) CountUsers() int {
	return len(s.userItems)
}

func (s *RatingStore) CountItems() int {
	return len(s.itemUsers)
}

func (s *RatingStore) HasRated(userId, itemId string) bool {
	_, exist := s.ratings[ratingKey{userId: userId, itemId: itemId}]
	return exist
}

func (s *RatingStore) Get(userId, itemId string) (Rating, bool) {
	r, exist := s.ratings[ratingKey{userId: userId, itemId: itemId}]
	return r, exist
}

// RatingsOf returns a copy of the set of movies rated by a user.
func (s *RatingStore) RatingsOf(userId string) mapset.Set[string] {
	if items, ok := s.userItems[userId]; ok {
		return items.Clone()
	}
	return mapset.NewThreadUnsafeSet[string]()
}

// RatersOf returns a copy of the set of users who rated a movie.
func (s *RatingStore) RatersOf(itemId string) mapset.Set[string] {
	if users, ok := s.itemUsers[itemId]; ok {
		return users.Clone()
	}
	return mapset.NewThreadUnsafeSet[string]()
}

// UserRatings returns ratings of a user indexed by movie.
func (s *RatingStore) UserRatings(userId string) map[string]float32 {
	items, ok := s.userItems[userId]
	if !ok {
		return nil
	}
	ret := make(map[string]float32, items.Cardinality())
	for itemId := range items.Iter() {
		ret[itemId] = s.ratings[ratingKey{userId: userId, itemId: itemId}].Value
	}
	return ret
}

// ItemRatings returns ratings on a movie indexed by user.
func (s *RatingStore) ItemRatings(itemId string) map[string]float32 {
	users, ok := s.itemUsers[itemId]
	if !ok {
		return nil
	}
	ret := make(map[string]float32, users.Cardinality())
	for userId := range users.Iter() {
		ret[userId] = s.ratings[ratingKey{userId: userId, itemId: itemId}].Value
	}
	return ret
}

// AllUserIds returns ids of users with at least one rating in ascending order.
func (s *RatingStore) AllUserIds() []string {
	ids := lo.Keys(s.userItems)
	slices.Sort(ids)
	return ids
}

// AllItemIds returns ids of movies with at least one rating in ascending order.
func (s *RatingStore) AllItemIds() []string {
	ids := lo.Keys(s.itemUsers)
	slices.Sort(ids)
	return ids
}

// Ratings returns all ratings ordered by (user, movie).
func (s *RatingStore) Ratings() []Rating {
	ratings := lo.Values(s.ratings)
	slices.SortFunc(ratings, func(a, b Rating) int {
		return cmp.Or(cmp.Compare(a.UserId, b.UserId), cmp.Compare(a.ItemId, b.ItemId))
	})
	return ratings
}

// GlobalMean returns the mean of all ratings, or zero for an empty store.
func (s *RatingStore) GlobalMean() float32 {
	if len(s.ratings) == 0 {
		return 0
	}
	return float32(s.sum / float64(len(s.ratings)))
}

func (s *RatingStore) UserMean(userId string) (float32, bool) {
	items, ok := s.userItems[userId]
	if !ok {
		return 0, false
	}
	return float32(s.userSum[userId] / float64(items.Cardinality())), true
}

func (s *RatingStore) ItemMean(itemId string) (float32, bool) {
	users, ok := s.itemUsers[itemId]
	if !ok {
		return 0, false
	}
	return float32(s.itemSum[itemId] / float64(users.Cardinality())), true
}
