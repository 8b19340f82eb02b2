// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package driver times bulk insertion and lookup on an indexmap.Map.
package driver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/indexmap"
	"go.uber.org/zap"
)

// Result summarizes a run.
type Result struct {
	Inserted       int
	Found          int
	Capacity       int
	InsertDuration time.Duration
	LookupDuration time.Duration
}

// Run inserts cfg.Limit keys into a new map and then looks every one of them
// up, timing both phases. The context is checked every cfg.BatchSize
// operations; a cancelled run returns the context's error.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	logger = logger.With(zap.Int("limit", cfg.Limit), zap.Int("stride", cfg.Stride))

	m := indexmap.New[int, string](cfg.InitialCapacity,
		indexmap.WithHash[int, string](indexmap.IntegerHash[int]))

	var res Result
	logger.Debug("insert phase starting", zap.Int("capacity", m.Capacity()))
	start := time.Now()
	for i := 0; i < cfg.Limit; i++ {
		if i%cfg.BatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return res, errors.Wrapf(err, "insert phase after %d keys", i)
			}
		}
		if _, replaced := m.Insert(i*cfg.Stride, "a"); !replaced {
			res.Inserted++
		}
	}
	res.InsertDuration = time.Since(start)
	res.Capacity = m.Capacity()
	logger.Info("insert phase done",
		zap.Int("inserted", res.Inserted),
		zap.Int("capacity", res.Capacity),
		zap.Duration("elapsed", res.InsertDuration))

	start = time.Now()
	for i := 0; i < cfg.Limit; i++ {
		if i%cfg.BatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return res, errors.Wrapf(err, "lookup phase after %d keys", i)
			}
		}
		if _, ok := m.Get(i * cfg.Stride); ok {
			res.Found++
		}
	}
	res.LookupDuration = time.Since(start)
	logger.Info("lookup phase done",
		zap.Int("found", res.Found),
		zap.Duration("elapsed", res.LookupDuration))

	if res.Found != res.Inserted {
		return res, errors.AssertionFailedf("found %d of %d inserted keys", res.Found, res.Inserted)
	}
	return res, nil
}
