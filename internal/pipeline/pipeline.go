// Package pipeline converts structured state into the compact binary blob
// stored as the cloud payload, and back.
//
// The forward path is JSON encode, gzip, then MessagePack bin framing.
// Encryption happens outside this package on the packed bytes. Every step is
// deterministic: the same value always produces the same bytes.
package pipeline

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"

	"budgetsync/internal/budget"
)

// compressionLevel is fixed so output never depends on library defaults.
const compressionLevel = gzip.BestCompression

// maxInflatedSize bounds the decompressed JSON accepted by unpack.
var maxInflatedSize int64 = 256 << 20

// Analysis describes the size of a value at each pipeline stage.
type Analysis struct {
	OriginalSize      int     `json:"originalSize" yaml:"original_size"`
	CompressedSize    int     `json:"compressedSize" yaml:"compressed_size"`
	FinalSize         int     `json:"finalSize" yaml:"final_size"`
	CompressionRatio  float64 `json:"compressionRatio" yaml:"compression_ratio"`
	TotalReduction    float64 `json:"totalReduction" yaml:"total_reduction"`
	SpaceSaved        int     `json:"spaceSaved" yaml:"space_saved"`
	SpaceSavedPercent float64 `json:"spaceSavedPercent" yaml:"space_saved_percent"`
}

// Serialize encodes v as JSON, compresses it and wraps the result as a
// MessagePack bin value.
func Serialize(v any) ([]byte, error) {
	_, _, packed, err := run(v)
	return packed, err
}

// Deserialize reverses Serialize into generic JSON values. Numbers are
// returned as json.Number so no precision is lost.
func Deserialize(data []byte) (any, error) {
	var out any
	if err := DeserializeInto(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeserializeInto reverses Serialize, decoding the JSON document into v.
func DeserializeInto(data []byte, v any) error {
	raw, err := unpack(data)
	if err != nil {
		return deserializationError(err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return deserializationError(fmt.Errorf("decoding JSON: %w", err))
	}
	return nil
}

// AnalyzeCompression runs the pipeline over v and reports stage sizes.
// It returns nil if v cannot be serialized.
func AnalyzeCompression(v any) *Analysis {
	raw, compressed, packed, err := run(v)
	if err != nil {
		return nil
	}
	return analyze(len(raw), len(compressed), len(packed))
}

// ToBase64 encodes b with the standard padded alphabet.
func ToBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// FromBase64 decodes s, failing with ErrDecoding on input outside the alphabet.
func FromBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &budget.IntegrityError{Kind: budget.ErrDecoding, Err: err}
	}
	return b, nil
}

// PrepareForCloud is ToBase64(Serialize(v)).
func PrepareForCloud(v any) (string, error) {
	b, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return ToBase64(b), nil
}

// RestoreFromCloud reverses PrepareForCloud.
func RestoreFromCloud(s string) (any, error) {
	b, err := FromBase64(s)
	if err != nil {
		return nil, err
	}
	return Deserialize(b)
}

// RestoreFromCloudInto reverses PrepareForCloud into v.
func RestoreFromCloudInto(s string, v any) error {
	b, err := FromBase64(s)
	if err != nil {
		return err
	}
	return DeserializeInto(b, v)
}

func run(v any) (raw, compressed, packed []byte, err error) {
	raw, err = json.Marshal(v)
	if err != nil {
		return nil, nil, nil, serializationError(fmt.Errorf("encoding JSON: %w", err))
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, compressionLevel)
	if err != nil {
		return nil, nil, nil, serializationError(err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, nil, nil, serializationError(fmt.Errorf("compressing: %w", err))
	}
	if err := zw.Close(); err != nil {
		return nil, nil, nil, serializationError(fmt.Errorf("compressing: %w", err))
	}
	compressed = buf.Bytes()

	packed, err = msgpack.Marshal(compressed)
	if err != nil {
		return nil, nil, nil, serializationError(fmt.Errorf("packing: %w", err))
	}
	return raw, compressed, packed, nil
}

func unpack(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	var compressed []byte
	if err := msgpack.Unmarshal(data, &compressed); err != nil {
		return nil, fmt.Errorf("unpacking: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(io.LimitReader(zr, maxInflatedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	if int64(len(raw)) > maxInflatedSize {
		return nil, fmt.Errorf("decompressing: payload exceeds %d bytes", maxInflatedSize)
	}
	return raw, nil
}

func analyze(original, compressed, final int) *Analysis {
	a := &Analysis{
		OriginalSize:   original,
		CompressedSize: compressed,
		FinalSize:      final,
		SpaceSaved:     original - final,
	}
	if compressed > 0 {
		a.CompressionRatio = round2(float64(original) / float64(compressed))
	}
	if final > 0 {
		a.TotalReduction = round2(float64(original) / float64(final))
	}
	if original > 0 {
		a.SpaceSavedPercent = round2(float64(original-final) / float64(original) * 100)
	}
	return a
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func serializationError(err error) error {
	return &budget.IntegrityError{Kind: budget.ErrSerialization, Err: err}
}

func deserializationError(err error) error {
	return &budget.IntegrityError{Kind: budget.ErrDeserialization, Err: err}
}
