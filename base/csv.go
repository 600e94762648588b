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

package base

import (
	"bufio"
	"strings"

	"github.com/juju/errors"
)

// ValidateId validates user/movie id. Id cannot be empty or blank.
func ValidateId(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.NotValidf("empty id %q", text)
	}
	return nil
}

// fieldParser splits quoted csv records which may span several lines.
type fieldParser struct {
	sep     []rune
	fields  []string
	builder strings.Builder
	quoted  bool
}

// feed consumes one physical line and reports whether the record is complete.
func (p *fieldParser) feed(line string) bool {
	if p.quoted {
		// line break inside a quoted field
		p.builder.WriteString("\r\n")
	}
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case !p.quoted && p.isSep(runes[i:]):
			p.fields = append(p.fields, p.builder.String())
			p.builder.Reset()
			i += len(p.sep) - 1
		case c == '"' && !p.quoted:
			p.quoted = true
		case c == '"' && i+1 < len(runes) && runes[i+1] == '"':
			// escaped quote
			i++
			p.builder.WriteRune('"')
		case c == '"':
			p.quoted = false
		default:
			p.builder.WriteRune(c)
		}
	}
	if p.quoted {
		return false
	}
	p.fields = append(p.fields, p.builder.String())
	p.builder.Reset()
	return true
}

func (p *fieldParser) isSep(runes []rune) bool {
	if len(runes) < len(p.sep) {
		return false
	}
	for i, r := range p.sep {
		if runes[i] != r {
			return false
		}
	}
	return true
}

func (p *fieldParser) take() []string {
	fields := p.fields
	p.fields = nil
	return fields
}

// ReadLines parse fields of each record for csv file. The separator may have
// several characters, such as "::" in MovieLens. The handler receives the
// zero-based physical line number where the record ends and stops the scan by
// returning false.
func ReadLines(sc *bufio.Scanner, sep string, handler func(int, []string) bool) error {
	if sep == "" {
		return errors.NotValidf("empty separator")
	}
	p := &fieldParser{sep: []rune(sep)}
	for lineCount := 0; sc.Scan(); lineCount++ {
		if p.feed(sc.Text()) && !handler(lineCount, p.take()) {
			return nil
		}
	}
	return errors.Trace(sc.Err())
}
