package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestFlushEmitsSingleJSONLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)
	r.Dimension("Stage", "segmentation")
	r.Metric("SegmentCount", 12, UnitCount)
	r.Property("jobId", "abc123")
	r.Flush()

	out := buf.String()
	if strings.Count(out, "\n") != 1 || !strings.HasSuffix(out, "\n") {
		t.Fatalf("EMF output must be exactly one line, got %q", out)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if doc["Stage"] != "segmentation" {
		t.Errorf("dimension value missing: %v", doc)
	}
	if doc["SegmentCount"] != float64(12) {
		t.Errorf("metric value missing: %v", doc)
	}
	if doc["jobId"] != "abc123" {
		t.Errorf("property missing: %v", doc)
	}
	if _, ok := doc["_aws"]; !ok {
		t.Error("_aws directive missing")
	}
}

func TestFlushDirectiveShape(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)
	r.Dimension("Stage", "synthesis")
	r.Metric("AudioBytes", 2048, UnitBytes)
	r.Flush()

	var doc struct {
		AWS struct {
			CloudWatchMetrics []struct {
				Namespace  string
				Dimensions [][]string
				Metrics    []struct{ Name, Unit string }
			} `json:"CloudWatchMetrics"`
		} `json:"_aws"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	cw := doc.AWS.CloudWatchMetrics
	if len(cw) != 1 || cw[0].Namespace != Namespace {
		t.Fatalf("directive %+v", cw)
	}
	if len(cw[0].Dimensions) != 1 || cw[0].Dimensions[0][0] != "Stage" {
		t.Errorf("dimensions %v", cw[0].Dimensions)
	}
	if len(cw[0].Metrics) != 1 || cw[0].Metrics[0].Unit != UnitBytes {
		t.Errorf("metrics %v", cw[0].Metrics)
	}
}

func TestFlushWithoutMetricsIsNoOp(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)
	r.Dimension("Stage", "analysis")
	r.Property("jobId", "abc")
	r.Flush()

	if buf.Len() != 0 {
		t.Fatalf("expected no output without metrics, got %q", buf.String())
	}
}

func TestCountShorthand(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)
	r.Count("JobsFailed")
	r.Flush()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc["JobsFailed"] != float64(1) {
		t.Errorf("count value %v", doc["JobsFailed"])
	}
}
