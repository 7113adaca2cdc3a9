// Package tokenizer loads a binary vocabulary file and encodes text into
// token ids with greedy score-based pair merging.
//
// File layout: one int32 max token length, then one record per vocabulary
// entry: float32 merge score, int32 byte length, raw piece bytes. The
// vocabulary size is whatever the file holds; records run to EOF.
package tokenizer

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strings"

	"github.com/skarn-ml/skarn/internal/metrics"
	"github.com/skarn-ml/skarn/internal/status"
)

// byteFallbackOffset maps a raw byte b to token id b+3, past the
// control pieces at the front of the vocabulary.
const byteFallbackOffset = 3

type Tokenizer struct {
	tokens      []string
	scores      []float32
	index       map[string]int
	maxTokenLen int
}

// Load reads the vocabulary file at path.
func Load(path string) (*Tokenizer, error) {
	if path == "" {
		return nil, status.PathNotValid("tokenizer path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, status.PathNotValid("open tokenizer file %s: %v", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var maxLen int32
	if err := binary.Read(r, binary.LittleEndian, &maxLen); err != nil {
		return nil, status.ModelParseError("tokenizer file %s: read max token length: %v", path, err)
	}
	if maxLen <= 0 {
		return nil, status.ModelParseError("tokenizer file %s: invalid max token length %d", path, maxLen)
	}

	t := &Tokenizer{index: make(map[string]int), maxTokenLen: int(maxLen)}
	for {
		var score float32
		if err := binary.Read(r, binary.LittleEndian, &score); err != nil {
			if err == io.EOF {
				break
			}
			return nil, status.ModelParseError("tokenizer file %s: token %d score: %v", path, len(t.tokens), err)
		}
		var n int32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, status.ModelParseError("tokenizer file %s: token %d length: %v", path, len(t.tokens), err)
		}
		if n < 0 || int(n) > t.maxTokenLen {
			return nil, status.ModelParseError("tokenizer file %s: token %d has length %d (max %d)",
				path, len(t.tokens), n, maxLen)
		}
		piece := make([]byte, n)
		if _, err := io.ReadFull(r, piece); err != nil {
			return nil, status.ModelParseError("tokenizer file %s: token %d bytes: %v", path, len(t.tokens), err)
		}

		id := len(t.tokens)
		t.tokens = append(t.tokens, string(piece))
		t.scores = append(t.scores, score)
		if _, dup := t.index[string(piece)]; !dup {
			t.index[string(piece)] = id
		}
	}

	if len(t.tokens) == 0 {
		return nil, status.ModelParseError("tokenizer file %s holds no vocabulary entries", path)
	}
	return t, nil
}

func (t *Tokenizer) VocabSize() int {
	return len(t.tokens)
}

// MaxTokenLen is the longest piece byte length the file declares.
func (t *Tokenizer) MaxTokenLen() int {
	return t.maxTokenLen
}

// Encode splits text into known pieces, falling back to byte tokens for
// unknown codepoints, then greedily merges the best-scoring adjacent pair
// until no merge is possible.
func (t *Tokenizer) Encode(text string) []int32 {
	var ids []int32
	for _, r := range text {
		piece := string(r)
		if id, ok := t.index[piece]; ok {
			ids = append(ids, int32(id))
			continue
		}
		for _, b := range []byte(piece) {
			ids = append(ids, int32(b)+byteFallbackOffset)
		}
	}

	for {
		bestScore := float32(math.Inf(-1))
		bestID, bestAt := -1, -1
		for i := 0; i+1 < len(ids); i++ {
			// Byte-fallback ids may lie past the end of a small vocabulary.
			if int(ids[i]) >= len(t.tokens) || int(ids[i+1]) >= len(t.tokens) {
				continue
			}
			merged := t.tokens[ids[i]] + t.tokens[ids[i+1]]
			if id, ok := t.index[merged]; ok && t.scores[id] > bestScore {
				bestScore = t.scores[id]
				bestID = id
				bestAt = i
			}
		}
		if bestAt < 0 {
			break
		}
		ids[bestAt] = int32(bestID)
		ids = append(ids[:bestAt+1], ids[bestAt+2:]...)
	}

	metrics.RecordTokensEncoded(len(ids))
	return ids
}

// Decode concatenates the pieces for the given ids, skipping ids outside
// the vocabulary.
func (t *Tokenizer) Decode(ids []int32) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(t.tokens) {
			continue
		}
		sb.WriteString(t.tokens[id])
	}
	return sb.String()
}

// Piece returns the raw vocabulary entry for one id.
func (t *Tokenizer) Piece(id int32) (string, error) {
	if id < 0 || int(id) >= len(t.tokens) {
		return "", status.InternalError("token id %d outside vocabulary of %d", id, len(t.tokens))
	}
	return t.tokens[id], nil
}
