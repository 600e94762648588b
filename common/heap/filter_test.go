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

package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/constraints"
)

func values[T constraints.Ordered, W constraints.Ordered](elems []Elem[T, W]) []T {
	result := make([]T, len(elems))
	for i, elem := range elems {
		result[i] = elem.Value
	}
	return result
}

func TestTopKFilter(t *testing.T) {
	a := NewTopKFilter[int32, float32](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	assert.Equal(t, []int32{20, 10, 30}, values(a.PopAll()))
	// overflow
	a = NewTopKFilter[int32, float32](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	a.Push(40, 2)
	a.Push(50, 5)
	a.Push(12, 10)
	a.Push(67, 7)
	a.Push(32, 9)
	assert.Equal(t, []Elem[int32, float32]{
		{Value: 12, Weight: 10},
		{Value: 32, Weight: 9},
		{Value: 20, Weight: 8},
	}, a.PopAll())
	assert.Zero(t, a.Len())
}

func TestTopKFilterTies(t *testing.T) {
	a := NewTopKFilter[string, float32](2)
	a.Push("i3", 4)
	a.Push("i2", 4)
	a.Push("i1", 4)
	a.Push("i0", 1)
	assert.Equal(t, []string{"i1", "i2"}, values(a.PopAll()))
	// push order does not matter
	b := NewTopKFilter[string, float32](2)
	b.Push("i1", 4)
	b.Push("i0", 1)
	b.Push("i2", 4)
	b.Push("i3", 4)
	assert.Equal(t, []string{"i1", "i2"}, values(b.PopAll()))
}

func TestTopKFilterEmpty(t *testing.T) {
	a := NewTopKFilter[string, float64](0)
	a.Push("movie", 1)
	assert.Empty(t, a.PopAll())
	b := NewTopKFilter[string, float64](5)
	b.Push("movie", 1)
	assert.Equal(t, []Elem[string, float64]{{Value: "movie", Weight: 1}}, b.PopAll())
}
