// Copyright 2024 gorse Project Authors
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

package recommend

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/juju/errors"
)

// Candidate is the environment of filter expressions.
type Candidate struct {
	UserId string  `expr:"user_id"`
	ItemId string  `expr:"item_id"`
	Score  float64 `expr:"score"`
	Raters int     `expr:"raters"`
	Mean   float64 `expr:"mean"`
}

// Filter drops candidates for which a boolean expression is false, for example
//
//	raters >= 20 && score > 3.5
type Filter struct {
	source  string
	program *vm.Program
}

// NewFilter compiles a filter expression.
func NewFilter(source string) (*Filter, error) {
	program, err := expr.Compile(source, expr.Env(Candidate{}), expr.AsBool())
	if err != nil {
		return nil, errors.NewNotValid(err, "filter expression")
	}
	return &Filter{source: source, program: program}, nil
}

func (f *Filter) String() string {
	return f.source
}

// Accept evaluates the expression on a candidate.
func (f *Filter) Accept(candidate Candidate) (bool, error) {
	result, err := expr.Run(f.program, candidate)
	if err != nil {
		return false, errors.Annotatef(err, "evaluate filter %q", f.source)
	}
	return result.(bool), nil
}
