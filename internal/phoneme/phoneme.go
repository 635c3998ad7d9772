// Package phoneme scores a recognized text against its reference letter by
// letter.
//
// The comparison walks both texts rune by rune up to the shorter length.
// Every reference rune that is an Arabic letter produces one entry keyed
// "<phoneme>_<index>", scoring 1 when the recognized rune at the same index
// is identical and 0 otherwise. Diacritics and spaces are walked over but
// never scored.
package phoneme

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// names maps each letter to its phoneme name. Letters that share a sound
// class (e.g. ت and ط) share a name; the index keeps keys unique.
var names = map[rune]string{
	'ا': "alif", 'ب': "ba", 'ت': "ta", 'ث': "tha", 'ج': "jeem",
	'ح': "ha", 'خ': "kha", 'د': "dal", 'ذ': "dhal", 'ر': "ra",
	'ز': "zay", 'س': "seen", 'ش': "sheen", 'ص': "sad", 'ض': "dad",
	'ط': "ta", 'ظ': "za", 'ع': "ain", 'غ': "ghain", 'ف': "fa",
	'ق': "qaf", 'ك': "kaf", 'ل': "lam", 'م': "meem", 'ن': "noon",
	'ه': "ha", 'و': "waw", 'ي': "ya",
}

// Name returns the phoneme name of letter. ok is false for runes that are
// not one of the 28 letters.
func Name(letter rune) (name string, ok bool) {
	name, ok = names[letter]
	return name, ok
}

// Score compares recognized with reference and returns the phoneme-score
// map. Either text being empty yields an empty map.
func Score(recognized, reference string) map[string]float64 {
	out := make(map[string]float64)
	if recognized == "" || reference == "" {
		return out
	}
	rec := []rune(recognized)
	ref := []rune(reference)
	for i := range min(len(rec), len(ref)) {
		name, ok := names[ref[i]]
		if !ok {
			continue
		}
		score := 0.0
		if rec[i] == ref[i] {
			score = 1
		}
		out[Key(name, i)] = score
	}
	return out
}

// Key builds the map key for the phoneme at rune index i.
func Key(name string, i int) string { return name + "_" + strconv.Itoa(i) }

// ParseKey splits a key produced by [Key].
func ParseKey(key string) (name string, index int, err error) {
	at := strings.LastIndexByte(key, '_')
	if at <= 0 {
		return "", 0, fmt.Errorf("phoneme: malformed key %q", key)
	}
	index, err = strconv.Atoi(key[at+1:])
	if err != nil {
		return "", 0, fmt.Errorf("phoneme: malformed key %q: %w", key, err)
	}
	return key[:at], index, nil
}

// SortedKeys returns the keys of scores ordered by rune index. Keys that do
// not parse come last, in lexical order.
func SortedKeys(scores map[string]float64) []string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		_, ia, errA := ParseKey(a)
		_, ib, errB := ParseKey(b)
		switch {
		case errA == nil && errB == nil:
			if c := cmp.Compare(ia, ib); c != 0 {
				return c
			}
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		}
		return strings.Compare(a, b)
	})
	return keys
}
