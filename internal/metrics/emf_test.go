package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// capture swaps the emit target for a buffer for the duration of a test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := emitTo
	emitTo = &buf
	t.Cleanup(func() { emitTo = orig })
	return &buf
}

func decodeDoc(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("flushed document is not valid JSON: %v\n%s", err, buf.String())
	}
	return doc
}

func TestFlush_EmitsDocument(t *testing.T) {
	buf := capture(t)

	New("PageBridge/Test").
		Dimension("Action", "get_pages").
		Metric("DurationMs", 42.5, UnitMilliseconds).
		Count("Invocations").
		Property("pageId", "123").
		Flush()

	doc := decodeDoc(t, buf)

	aws, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("document has no _aws directive")
	}
	cw := aws["CloudWatchMetrics"].([]interface{})[0].(map[string]interface{})
	if cw["Namespace"] != "PageBridge/Test" {
		t.Errorf("unexpected namespace %v", cw["Namespace"])
	}

	if doc["Action"] != "get_pages" {
		t.Errorf("dimension value missing: %v", doc["Action"])
	}
	if doc["DurationMs"] != 42.5 {
		t.Errorf("metric value missing: %v", doc["DurationMs"])
	}
	if doc["Invocations"] != 1.0 {
		t.Errorf("count value missing: %v", doc["Invocations"])
	}
	if doc["pageId"] != "123" {
		t.Errorf("property missing: %v", doc["pageId"])
	}

	// EMF requires exactly one line.
	if n := strings.Count(strings.TrimRight(buf.String(), "\n"), "\n"); n != 0 {
		t.Errorf("expected a single-line document, got %d extra newlines", n)
	}
}

func TestFlush_NoMetricsEmitsNothing(t *testing.T) {
	buf := capture(t)

	New("PageBridge/Test").Dimension("Action", "noop").Property("k", "v").Flush()

	if buf.Len() != 0 {
		t.Errorf("expected no output without metrics, got %s", buf.String())
	}
}

func TestMetric_SameNameOverwrites(t *testing.T) {
	buf := capture(t)

	New("PageBridge/Test").
		Metric("EventsPublished", 1, UnitCount).
		Metric("EventsPublished", 3, UnitCount).
		Flush()

	doc := decodeDoc(t, buf)
	if doc["EventsPublished"] != 3.0 {
		t.Errorf("expected the later value to win, got %v", doc["EventsPublished"])
	}

	aws := doc["_aws"].(map[string]interface{})
	cw := aws["CloudWatchMetrics"].([]interface{})[0].(map[string]interface{})
	if defs := cw["Metrics"].([]interface{}); len(defs) != 1 {
		t.Errorf("expected one metric definition, got %d", len(defs))
	}
}
