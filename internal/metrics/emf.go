// Package metrics emits CloudWatch custom metrics in Embedded Metric Format:
// one JSON document per flush, printed to stdout, from which CloudWatch Logs
// extracts the metric values. Lambda handlers get metrics this way without
// PutMetricData calls or an agent.
//
// Spec: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// CloudWatch metric units accepted by Metric.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitBytes        = "Bytes"
	UnitNone         = "None"
)

// emitTo is where flushed documents are written. Tests swap in a buffer.
var emitTo io.Writer = os.Stdout

// lambdaFunction resolves the executing function's name once per process.
var lambdaFunction = sync.OnceValue(func() string {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
})

type series struct {
	name  string
	unit  string
	value float64
}

type field struct {
	key   string
	value interface{}
}

// Recorder collects dimensions, metric values, and context properties for one
// EMF document. Not safe for concurrent use; create one per operation and
// Flush it exactly once, typically via defer.
type Recorder struct {
	namespace string
	dims      []field
	series    []series
	props     []field
}

// New creates a Recorder for the given CloudWatch namespace. The Lambda
// function name, when the environment provides one, becomes a dimension so
// metrics from different handlers stay separable.
func New(namespace string) *Recorder {
	r := &Recorder{namespace: namespace}
	if name := lambdaFunction(); name != "" {
		r.dims = append(r.dims, field{"FunctionName", name})
	}
	return r
}

// Dimension adds an indexed dimension. CloudWatch creates a distinct metric
// per dimension value combination, so keep cardinality low.
func (r *Recorder) Dimension(key, value string) *Recorder {
	for i := range r.dims {
		if r.dims[i].key == key {
			r.dims[i].value = value
			return r
		}
	}
	r.dims = append(r.dims, field{key, value})
	return r
}

// Metric records a value under one of the Unit* constants. Recording the same
// name again overwrites the earlier value.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	for i := range r.series {
		if r.series[i].name == name {
			r.series[i] = series{name, unit, value}
			return r
		}
	}
	r.series = append(r.series, series{name, unit, value})
	return r
}

// Count records a count metric with value 1.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Property attaches a searchable field to the document without creating a
// CloudWatch metric from it.
func (r *Recorder) Property(key string, value interface{}) *Recorder {
	r.props = append(r.props, field{key, value})
	return r
}

// Flush writes the EMF document as a single stdout line. A Recorder with no
// metrics flushes nothing. The Recorder must not be reused afterwards.
func (r *Recorder) Flush() {
	if len(r.series) == 0 {
		return
	}

	type metricDef struct {
		Name string `json:"Name"`
		Unit string `json:"Unit"`
	}
	defs := make([]metricDef, len(r.series))
	dimKeys := make([]string, len(r.dims))
	for i, s := range r.series {
		defs[i] = metricDef{s.name, s.unit}
	}
	for i, d := range r.dims {
		dimKeys[i] = d.key
	}

	doc := map[string]interface{}{
		"_aws": map[string]interface{}{
			"Timestamp": time.Now().UnixMilli(),
			"CloudWatchMetrics": []map[string]interface{}{{
				"Namespace":  r.namespace,
				"Dimensions": [][]string{dimKeys},
				"Metrics":    defs,
			}},
		},
	}
	for _, d := range r.dims {
		doc[d.key] = d.value
	}
	for _, s := range r.series {
		doc[s.name] = s.value
	}
	for _, p := range r.props {
		doc[p.key] = p.value
	}

	line, err := json.Marshal(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics: marshal failed: %v\n", err)
		return
	}
	fmt.Fprintln(emitTo, string(line))
}
