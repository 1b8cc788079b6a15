package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// PipelineReport is the result of a full round trip through the cloud pipeline.
type PipelineReport struct {
	Success    bool          `json:"success" yaml:"success"`
	TotalTime  time.Duration `json:"totalTime" yaml:"total_time"`
	Base64Size int           `json:"base64Size" yaml:"base64_size"`
	Analysis   *Analysis     `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	Verified   string        `json:"verified" yaml:"verified"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// TestPipeline sends v through PrepareForCloud and RestoreFromCloud and checks
// that the result is structurally equal to the input. It is a diagnostic, not
// part of the sync path. A mismatch is reported as Success=false.
func TestPipeline(v any) *PipelineReport {
	start := time.Now()
	report := &PipelineReport{}

	encoded, err := PrepareForCloud(v)
	if err != nil {
		report.Error = err.Error()
		report.Verified = "❌ Serialization failed"
		report.TotalTime = time.Since(start)
		return report
	}
	report.Base64Size = len(encoded)

	restored, err := RestoreFromCloud(encoded)
	if err != nil {
		report.Error = err.Error()
		report.Verified = "❌ Deserialization failed"
		report.TotalTime = time.Since(start)
		return report
	}

	report.TotalTime = time.Since(start)
	report.Analysis = AnalyzeCompression(v)

	equal, err := structurallyEqual(v, restored)
	switch {
	case err != nil:
		report.Error = err.Error()
		report.Verified = "❌ Comparison failed"
	case !equal:
		report.Verified = "❌ Data mismatch after round trip"
	default:
		report.Success = true
		report.Verified = "✅ Data integrity verified"
	}
	return report
}

// structurallyEqual compares a and b after normalizing both through JSON, so
// struct values, maps and json.Number compare by their encoded form.
func structurallyEqual(a, b any) (bool, error) {
	na, err := normalize(a)
	if err != nil {
		return false, err
	}
	nb, err := normalize(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(na, nb), nil
}

func normalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalizing: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("normalizing: %w", err)
	}
	return json.Marshal(generic)
}
