package tokenizer

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/skarn-ml/skarn/internal/status"
)

// writeVocab writes a vocabulary file from (piece, score) pairs.
func writeVocab(t *testing.T, maxLen int32, pieces []string, scores []float32) string {
	t.Helper()

	buf := binary.LittleEndian.AppendUint32(nil, uint32(maxLen))
	for i, p := range pieces {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(scores[i]))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p)))
		buf = append(buf, p...)
	}

	path := filepath.Join(t.TempDir(), "vocab.bin")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	return path
}

func TestLoadVocab(t *testing.T) {
	path := writeVocab(t, 8,
		[]string{"<unk>", "<s>", "</s>", "a", "b", "ab"},
		[]float32{0, 0, 0, -1, -2, 1.5})

	tok, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok.VocabSize() != 6 {
		t.Errorf("VocabSize = %d, want 6", tok.VocabSize())
	}
	piece, err := tok.Piece(5)
	if err != nil || piece != "ab" {
		t.Errorf("Piece(5) = %q, %v", piece, err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); !status.Is(err, status.KindPathNotValid) {
		t.Errorf("Load(\"\") = %v, want path not valid", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.bin")); !status.Is(err, status.KindPathNotValid) {
		t.Errorf("Load missing = %v, want path not valid", err)
	}
}

func TestLoadTruncatedRecord(t *testing.T) {
	path := writeVocab(t, 8, []string{"a"}, []float32{0})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Cut into the middle of the piece length field.
	if err := os.WriteFile(path, data[:len(data)-3], 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !status.Is(err, status.KindModelParseError) {
		t.Errorf("Load truncated = %v, want model parse error", err)
	}
}

func TestLoadRejectsOversizedToken(t *testing.T) {
	path := writeVocab(t, 2, []string{"abc"}, []float32{0})
	if _, err := Load(path); !status.Is(err, status.KindModelParseError) {
		t.Errorf("Load oversized token = %v, want model parse error", err)
	}
}

func TestEncodeMergesByScore(t *testing.T) {
	path := writeVocab(t, 8,
		[]string{"<unk>", "<s>", "</s>", "a", "b", "c", "ab", "abc"},
		[]float32{0, 0, 0, -1, -1, -1, 1, 2})

	tok, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ids := tok.Encode("abc")
	if len(ids) != 1 || ids[0] != 7 {
		t.Errorf("Encode(abc) = %v, want [7]", ids)
	}
	if got := tok.Decode(ids); got != "abc" {
		t.Errorf("Decode = %q, want abc", got)
	}
}

func TestEncodeByteFallback(t *testing.T) {
	path := writeVocab(t, 8,
		[]string{"<unk>", "<s>", "</s>", "x"},
		[]float32{0, 0, 0, 0})

	tok, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// "y" is not in the vocabulary; it falls back to byte id 'y'+3.
	ids := tok.Encode("xy")
	want := []int32{3, int32('y') + byteFallbackOffset}
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Errorf("Encode(xy) = %v, want %v", ids, want)
	}
}

func TestDecodeSkipsOutOfRangeIds(t *testing.T) {
	path := writeVocab(t, 8, []string{"a", "b"}, []float32{0, 0})
	tok, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := tok.Decode([]int32{0, 99, 1, -1}); got != "ab" {
		t.Errorf("Decode = %q, want ab", got)
	}
}
