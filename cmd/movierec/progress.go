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
	"io"
	"sync"
	"time"

	"github.com/gorse-io/movierec/base/progress"
	"github.com/schollz/progressbar/v3"
)

const pollInterval = 100 * time.Millisecond

// progressWatcher renders the progress of a span on a terminal progress bar.
type progressWatcher struct {
	tracer *progress.Tracer
	name   string
	writer io.Writer
	bar    *progressbar.ProgressBar
	done   chan struct{}
	wg     sync.WaitGroup
}

// watchProgress polls the tracer for the span named name until Stop is called.
func watchProgress(tracer *progress.Tracer, name string, writer io.Writer) *progressWatcher {
	w := &progressWatcher{
		tracer: tracer,
		name:   name,
		writer: writer,
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				w.update()
			}
		}
	}()
	return w
}

func (w *progressWatcher) update() {
	for _, p := range w.tracer.List() {
		if p.Name != w.name {
			continue
		}
		if w.bar == nil {
			w.bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetWriter(w.writer),
				progressbar.OptionSetDescription(p.Name),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40))
		}
		_ = w.bar.Set(p.Count)
		return
	}
}

// Stop renders the last state and closes the progress bar.
func (w *progressWatcher) Stop() {
	close(w.done)
	w.wg.Wait()
	w.update()
	if w.bar != nil {
		_ = w.bar.Finish()
		_, _ = io.WriteString(w.writer, "\n")
	}
}
