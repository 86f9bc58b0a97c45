// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package storages

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jgrep",
		Name:      "records_inserted_total",
		Help:      "Number of records inserted into the storage.",
	})
	recordsFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jgrep",
		Name:      "records_filtered_total",
		Help:      "Number of records rejected by the insertion filter.",
	})
	recordsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jgrep",
		Name:      "records_matched_total",
		Help:      "Number of records written to query connections.",
	})
	queriesServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jgrep",
		Name:      "queries_total",
		Help:      "Number of streaming queries started.",
	})
	evalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jgrep",
		Name:      "eval_errors_total",
		Help:      "Number of evaluation errors.",
	})
)
