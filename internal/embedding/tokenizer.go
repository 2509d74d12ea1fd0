package embedding

import (
	"strings"
	"unicode/utf8"
)

// BERT special token ids.
const (
	clsToken   = 101
	sepToken   = 102
	vocabSpace = 30000
	firstID    = 1000
)

// Encoding is one tokenized input, padded to a fixed length.
type Encoding struct {
	IDs     []int64
	Mask    []int64
	TypeIDs []int64
}

// Tokenizer produces BERT-style model inputs.
type Tokenizer interface {
	Encode(text string, maxTokens int) Encoding
}

// HashTokenizer maps words to hashed ids. Words longer than pieceLen runes also emit
// continuation pieces ("##" + each following chunk), so misspellings that keep a word's
// opening still share most ids with it.
type HashTokenizer struct{}

const pieceLen = 3

// Encode tokenizes text into [CLS] tokens... [SEP], padded or cut to maxTokens.
func (HashTokenizer) Encode(text string, maxTokens int) Encoding {
	if maxTokens < 2 {
		maxTokens = 32
	}
	enc := Encoding{
		IDs:     make([]int64, maxTokens),
		Mask:    make([]int64, maxTokens),
		TypeIDs: make([]int64, maxTokens),
	}
	n := 0
	put := func(id int64) bool {
		if n >= maxTokens-1 {
			return false
		}
		enc.IDs[n], enc.Mask[n] = id, 1
		n++
		return true
	}
	put(clsToken)
	for _, word := range strings.Fields(text) {
		if !put(pieceID(firstPiece(word))) {
			break
		}
		for _, p := range continuation(word) {
			if !put(pieceID("##" + p)) {
				break
			}
		}
	}
	enc.IDs[n], enc.Mask[n] = sepToken, 1
	return enc
}

func firstPiece(word string) string {
	if utf8.RuneCountInString(word) <= pieceLen {
		return word
	}
	return string([]rune(word)[:pieceLen])
}

func continuation(word string) []string {
	r := []rune(word)
	if len(r) <= pieceLen {
		return nil
	}
	var out []string
	for i := pieceLen; i < len(r); i += pieceLen {
		out = append(out, string(r[i:min(i+pieceLen, len(r))]))
	}
	return out
}

func pieceID(piece string) int64 {
	return int64(firstID + HashString(piece)%(vocabSpace-firstID))
}

// HashString returns a deterministic non-negative FNV-1a hash of s.
func HashString(s string) int {
	h := uint32(2166136261)
	for _, c := range s {
		h ^= uint32(c)
		h *= 16777619
	}
	return int(h & 0x7fffffff)
}
