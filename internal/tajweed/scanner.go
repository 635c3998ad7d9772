package tajweed

// Marks is the set of diacritics attached to one letter.
type Marks uint16

const (
	MarkFatha Marks = 1 << iota
	MarkDamma
	MarkKasra
	MarkSukun
	MarkShadda
	MarkFathatan
	MarkDammatan
	MarkKasratan
	MarkDaggerAlif
)

const (
	shortVowels = MarkFatha | MarkDamma | MarkKasra
	tanweens    = MarkFathatan | MarkDammatan | MarkKasratan
)

// Token is one letter of the reference text together with its diacritics.
type Token struct {
	// Letter is the base letter.
	Letter rune

	// Marks holds every diacritic attached to the letter.
	Marks Marks

	// Pos is the rune index of the letter in the scanned text. Violation
	// positions use the same index.
	Pos int

	// Word is the zero-based index of the word the letter belongs to.
	Word int
}

// Has reports whether all marks in m are present.
func (t Token) Has(m Marks) bool { return t.Marks&m == m }

// Vowel returns the short vowel on the letter, or 0.
func (t Token) Vowel() Marks { return t.Marks & shortVowels }

// HasTanween reports whether the letter carries any tanwīn.
func (t Token) HasTanween() bool { return t.Marks&tanweens != 0 }

// Unvowelled reports whether the letter has no short vowel, tanwīn or
// shadda. A letter with an explicit sukūn, or with no marks at all, is
// unvowelled.
func (t Token) Unvowelled() bool {
	return t.Marks&(shortVowels|tanweens|MarkShadda) == 0
}

type scanState int

const (
	// stateBoundary: outside any word (start of text, after whitespace or
	// punctuation).
	stateBoundary scanState = iota
	// stateLetter: a letter has been read and its marks are being collected.
	stateLetter
)

type runeClass int

const (
	classBoundary runeClass = iota
	classLetter
	classMark
	classIgnore
)

func classifyRune(r rune) runeClass {
	switch {
	case isLetter(r):
		return classLetter
	case markOf(r) != 0:
		return classMark
	case r == tatweel,
		r >= 0x0653 && r <= 0x065F,
		r >= 0x06D6 && r <= 0x06ED:
		return classIgnore
	}
	return classBoundary
}

func markOf(r rune) Marks {
	switch r {
	case fatha:
		return MarkFatha
	case damma:
		return MarkDamma
	case kasra:
		return MarkKasra
	case sukun, quranSukun:
		return MarkSukun
	case shadda:
		return MarkShadda
	case fathatan:
		return MarkFathatan
	case dammatan:
		return MarkDammatan
	case kasratan:
		return MarkKasratan
	case daggerAlif:
		return MarkDaggerAlif
	}
	return 0
}

// Tokenize scans vowelled Arabic text into letter tokens.
//
// The scanner is a two-state machine. A letter always opens a new token and
// moves to stateLetter; from a boundary it also opens a new word. Marks are
// attached to the most recent letter and dropped when no letter precedes
// them in the current word. Tatweel and Quranic annotation signs are
// skipped without ending the word. Anything else (whitespace, punctuation,
// digits, verse markers) ends the word.
func Tokenize(text string) []Token {
	var toks []Token
	state := stateBoundary
	word := -1
	pos := 0
	for _, r := range text {
		switch classifyRune(r) {
		case classLetter:
			if state == stateBoundary {
				word++
			}
			toks = append(toks, Token{Letter: r, Pos: pos, Word: word})
			state = stateLetter
		case classMark:
			if state == stateLetter {
				toks[len(toks)-1].Marks |= markOf(r)
			}
		case classIgnore:
		default:
			state = stateBoundary
		}
		pos++
	}
	return toks
}

// wordFinal reports whether toks[i] is the last letter of its word.
func wordFinal(toks []Token, i int) bool {
	return i == len(toks)-1 || toks[i+1].Word != toks[i].Word
}

// following returns the index of the letter read after toks[i], or -1. The
// silent alif (or alif maqṣūra) that carries fathatan at the end of a word
// is skipped.
func following(toks []Token, i int) int {
	j := i + 1
	if j >= len(toks) {
		return -1
	}
	if toks[i].HasTanween() && toks[j].Word == toks[i].Word &&
		(toks[j].Letter == alif || toks[j].Letter == alifMaqsura) && toks[j].Marks == 0 {
		j++
	}
	if j >= len(toks) {
		return -1
	}
	return j
}
