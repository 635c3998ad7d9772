package tajweed

import "strings"

// Base letters of the Arabic alphabet.
const (
	alif  = 'ا'
	ba    = 'ب'
	ta    = 'ت'
	tha   = 'ث'
	jim   = 'ج'
	haa   = 'ح'
	kha   = 'خ'
	dal   = 'د'
	dhal  = 'ذ'
	ra    = 'ر'
	zay   = 'ز'
	sin   = 'س'
	shin  = 'ش'
	sad   = 'ص'
	dad   = 'ض'
	taa   = 'ط'
	dhaa  = 'ظ'
	ayn   = 'ع'
	ghayn = 'غ'
	fa    = 'ف'
	qaf   = 'ق'
	kaf   = 'ك'
	lam   = 'ل'
	mim   = 'م'
	nun   = 'ن'
	ha    = 'ه'
	waw   = 'و'
	ya    = 'ي'
)

// Hamza forms and letter variants.
const (
	hamza          = 'ء'
	alifHamzaAbove = 'أ'
	alifHamzaBelow = 'إ'
	wawHamza       = 'ؤ'
	yaHamza        = 'ئ'
	alifMadda      = 'آ'
	alifWasla      = 'ٱ'
	alifMaqsura    = 'ى'
	taMarbuta      = 'ة'
)

// Combining marks recognised by the scanner.
const (
	fathatan   = '\u064B'
	dammatan   = '\u064C'
	kasratan   = '\u064D'
	fatha      = '\u064E'
	damma      = '\u064F'
	kasra      = '\u0650'
	shadda     = '\u0651'
	sukun      = '\u0652'
	daggerAlif = '\u0670'
	quranSukun = '\u06E1'
	tatweel    = '\u0640'
)

// letterSet is a small set of runes backed by a string.
type letterSet string

func (s letterSet) has(r rune) bool { return strings.ContainsRune(string(s), r) }

// alphabet lists the 28 letters followed by the hamza forms and the alif,
// yā' and tā' variants that appear in vowelled Quranic text.
const alphabet letterSet = "ابتثجحخدذرزسشصضطظعغفقكلمنهوي" + "ءأإؤئآ" + "ٱىة"

var (
	hamzaForms = letterSet("ءأإؤئآ")

	// The four groups that decide how a silenced nūn or tanwīn is read.
	idghamLetters = letterSet("يرملون")
	iqlabLetters  = letterSet("ب")
	ikhfaLetters  = letterSet("تثجدذزسشصضطظفقك")
	idhharLetters = letterSet("ءهعحغخ" + "اأإؤئآٱى")

	// Idgham without ghunnah.
	lamRa = letterSet("لر")

	// Letters after nūn/mīm sākinah that carry a ghunnah.
	ghunnahFollowers = letterSet("ينمو")
)

// nunClass is the reading of a silenced nūn or tanwīn.
type nunClass int

const (
	nunIdgham nunClass = iota + 1
	nunIqlab
	nunIkhfa
	nunIdhhar
)

func (c nunClass) String() string {
	switch c {
	case nunIdgham:
		return "idgham"
	case nunIqlab:
		return "iqlab"
	case nunIkhfa:
		return "ikhfa"
	case nunIdhhar:
		return "idhhar"
	default:
		return "unknown"
	}
}

// classifyAfterNun returns the group of the letter that follows a silenced
// nūn or tanwīn. Tā' marbūṭa is read as tā'. ok is false for runes outside
// the alphabet.
func classifyAfterNun(r rune) (c nunClass, ok bool) {
	if r == taMarbuta {
		r = ta
	}
	switch {
	case idghamLetters.has(r):
		return nunIdgham, true
	case iqlabLetters.has(r):
		return nunIqlab, true
	case ikhfaLetters.has(r):
		return nunIkhfa, true
	case idhharLetters.has(r):
		return nunIdhhar, true
	}
	return 0, false
}

// isLetter reports whether r is an Arabic base letter the scanner keeps.
func isLetter(r rune) bool {
	return (r >= 0x0621 && r <= 0x063A) || (r >= 0x0641 && r <= 0x064A) || r == alifWasla
}

// elongationVowel returns the short vowel that makes r an elongation letter,
// or 0 when r never elongates.
func elongationVowel(r rune) Marks {
	switch r {
	case alif, alifMaqsura:
		return MarkFatha
	case waw:
		return MarkDamma
	case ya:
		return MarkKasra
	}
	return 0
}
