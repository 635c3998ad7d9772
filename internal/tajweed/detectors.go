package tajweed

import (
	"fmt"
	"slices"

	"github.com/MrWong99/tartil/pkg/types"
)

// detector finds the violations of one category. Detectors are pure: they
// read the catalog, the token stream and the optional signals, and return a
// fresh slice.
type detector func(c *Catalog, toks []Token, sig *types.AudioSignals) []Violation

// detectors is indexed by category. init panics if a category has no entry.
var detectors = [categoryCount]detector{
	CategoryArticulation:       detectArticulation,
	CategoryElongation:         detectElongation,
	CategoryNasalization:       detectNasalization,
	CategoryAssimilation:       combine(silencedNasals(CategoryAssimilation), detectMithlain),
	CategorySubstitution:       silencedNasals(CategorySubstitution),
	CategoryClearPronunciation: silencedNasals(CategoryClearPronunciation),
	CategoryHiding:             silencedNasals(CategoryHiding),
	CategoryEchoing:            detectEchoing,
	CategoryHeavyLight:         detectHeavyLight,
	CategoryStopping:           detectStopping,
}

func init() {
	for i, d := range detectors {
		if d == nil {
			panic(fmt.Sprintf("tajweed: no detector for category %s", Category(i)))
		}
	}
}

func combine(ds ...detector) detector {
	return func(c *Catalog, toks []Token, sig *types.AudioSignals) []Violation {
		var out []Violation
		for _, d := range ds {
			out = append(out, d(c, toks, sig)...)
		}
		return out
	}
}

const (
	// minClarity is the articulation score below which a letter is flagged.
	minClarity = 0.5
	// majorClarity is the score below which the articulation error is major.
	majorClarity = 0.3
	// clearNasalLimit is the nasal length, in counts, at which a letter that
	// must be read without ghunnah is considered nasalized.
	clearNasalLimit = 1.0
	// defaultGhunnahCounts applies when a nasal rule declares no duration.
	defaultGhunnahCounts = 2.0
)

func maddCounts(sig *types.AudioSignals, pos int) (float64, bool) {
	if c, ok := sig.CountsAt(pos); ok {
		return c, true
	}
	if sig != nil && sig.MaddCounts != nil {
		return *sig.MaddCounts, true
	}
	return 0, false
}

func nasalCounts(sig *types.AudioSignals, pos int) (float64, bool) {
	if c, ok := sig.CountsAt(pos); ok {
		return c, true
	}
	if sig != nil && sig.GhunnahCounts != nil {
		return *sig.GhunnahCounts, true
	}
	return 0, false
}

// ── Elongation ──────────────────────────────────────────────────────────────

func maddRule(toks []Token, i int) string {
	t := toks[i]
	if t.Has(MarkDaggerAlif) {
		return "natural_madd"
	}
	if elongationVowel(t.Letter) == 0 || !t.Unvowelled() {
		return ""
	}
	if i+1 < len(toks) && hamzaForms.has(toks[i+1].Letter) {
		if toks[i+1].Word == t.Word {
			return "compulsory_madd"
		}
		return "permissible_madd"
	}
	if i > 0 && toks[i-1].Word == t.Word && toks[i-1].Vowel() == elongationVowel(t.Letter) {
		return "natural_madd"
	}
	return ""
}

func detectElongation(c *Catalog, toks []Token, sig *types.AudioSignals) []Violation {
	var out []Violation
	for i, t := range toks {
		id := maddRule(toks, i)
		if id == "" {
			continue
		}
		r := c.rule(id)
		measured, ok := maddCounts(sig, t.Pos)
		if !ok || measured >= r.Counts {
			continue
		}
		v := newFinding(r, t.Pos, sig)
		v.Severity = durationSeverity(measured, r.Counts)
		v.Expected = "hold for " + formatCounts(r.Counts)
		v.Actual = "held for " + formatCounts(measured)
		out = append(out, v)
	}
	return out
}

// ── Nasalization ────────────────────────────────────────────────────────────

func detectNasalization(c *Catalog, toks []Token, sig *types.AudioSignals) []Violation {
	var out []Violation
	for i, t := range toks {
		if t.Letter != nun && t.Letter != mim {
			continue
		}
		var id string
		switch {
		case t.Has(MarkShadda):
			id = "ghunnah_mushaddadah"
		case t.Has(MarkSukun) && i+1 < len(toks) && ghunnahFollowers.has(toks[i+1].Letter):
			id = "ghunnah_noon_sakinah"
			if t.Letter == mim {
				id = "ghunnah_meem_sakinah"
			}
		default:
			continue
		}
		r := c.rule(id)
		required := r.Counts
		if required == 0 {
			required = defaultGhunnahCounts
		}
		measured, ok := nasalCounts(sig, t.Pos)
		if !ok || measured >= required {
			continue
		}
		v := newFinding(r, t.Pos, sig)
		v.Severity = durationSeverity(measured, required)
		v.Expected = "nasalize for " + formatCounts(required)
		v.Actual = "nasalized for " + formatCounts(measured)
		out = append(out, v)
	}
	return out
}

// ── Silenced nūn, tanwīn and mīm sākinah ────────────────────────────────────

// nunRule maps the reading of a silenced nūn or tanwīn to its rule.
func nunRule(cls nunClass, next rune) string {
	switch cls {
	case nunIdgham:
		if lamRa.has(next) {
			return "idgham_without_ghunnah"
		}
		return "complete_idgham"
	case nunIqlab:
		return "iqlab"
	case nunIkhfa:
		return "ikhfa_haqiqi"
	default:
		return "idhhar_halqi"
	}
}

// mimRule maps the letter after a mīm sākinah to its rule. Letters that
// produce a ghunnah are left to the nasalization detector.
func mimRule(next rune) string {
	switch {
	case next == ba:
		return "ikhfa_shafawi"
	case ghunnahFollowers.has(next):
		return ""
	default:
		return "idhhar_shafawi"
	}
}

// withGhunnah lists the silenced-nasal rules whose reading keeps a ghunnah.
// The remaining ones must be read without nasalization.
var withGhunnah = map[string]bool{
	"complete_idgham": true,
	"iqlab":           true,
	"ikhfa_haqiqi":    true,
	"ikhfa_shafawi":   true,
}

// dropDoubleTimed removes nasalization violations at positions where a
// silenced-nasal rule that keeps its ghunnah already timed the same letter,
// so one short ghunnah is reported once. The remaining finding takes the
// higher of the two severities.
func dropDoubleTimed(findings []Violation) []Violation {
	timed := make(map[int]int)
	for i, v := range findings {
		if !v.Advisory && withGhunnah[v.RuleID] {
			timed[v.Position] = i
		}
	}
	if len(timed) == 0 {
		return findings
	}
	for _, v := range findings {
		k, ok := timed[v.Position]
		if ok && !v.Advisory && v.Category == CategoryNasalization && v.Severity.Rank() > findings[k].Severity.Rank() {
			findings[k].Severity = v.Severity
		}
	}
	return slices.DeleteFunc(findings, func(v Violation) bool {
		_, ok := timed[v.Position]
		return ok && !v.Advisory && v.Category == CategoryNasalization
	})
}

// silencedNasals returns the detector for one of the categories that
// partition the letters after a silenced nūn or tanwīn. Mīm sākinah before
// ب and before non-nasal letters is handled here as well.
//
// Without timing each occurrence is an advisory. With timing the nasal
// length at the silenced letter is compared against the rule.
func silencedNasals(cat Category) detector {
	return func(c *Catalog, toks []Token, sig *types.AudioSignals) []Violation {
		var out []Violation
		for i, t := range toks {
			var id string
			switch {
			case t.HasTanween() || (t.Letter == nun && t.Unvowelled()):
				j := following(toks, i)
				if j < 0 {
					continue
				}
				cls, ok := classifyAfterNun(toks[j].Letter)
				if !ok {
					continue
				}
				id = nunRule(cls, toks[j].Letter)
			case t.Letter == mim && t.Has(MarkSukun) && i+1 < len(toks):
				id = mimRule(toks[i+1].Letter)
			}
			if id == "" {
				continue
			}
			r := c.rule(id)
			if r.Category != cat {
				continue
			}
			// The recording-wide ghunnah length says nothing about letters
			// read without one, so those need their own segment.
			measured, timed := sig.CountsAt(t.Pos)
			if withGhunnah[r.ID] {
				measured, timed = nasalCounts(sig, t.Pos)
			}
			if !timed {
				out = append(out, newAdvisory(r, t.Pos, sig))
				continue
			}
			if v, bad := checkNasal(r, t.Pos, sig, measured); bad {
				out = append(out, v)
			}
		}
		return out
	}
}

func checkNasal(r Rule, pos int, sig *types.AudioSignals, measured float64) (Violation, bool) {
	v := newFinding(r, pos, sig)
	if withGhunnah[r.ID] {
		required := r.Counts
		if required == 0 {
			required = defaultGhunnahCounts
		}
		if measured >= required {
			return Violation{}, false
		}
		v.Expected = "nasalize for " + formatCounts(required)
		v.Actual = "nasalized for " + formatCounts(measured)
		return v, true
	}
	if measured < clearNasalLimit {
		return Violation{}, false
	}
	v.Expected = "no ghunnah"
	v.Actual = "nasalized for " + formatCounts(measured)
	return v, true
}

// detectMithlain flags a letter with sukūn followed by the same letter.
// Nūn and mīm are covered by the nasal rules.
func detectMithlain(c *Catalog, toks []Token, sig *types.AudioSignals) []Violation {
	var out []Violation
	r := c.rule("idgham_mithlain")
	for i, t := range toks {
		if !t.Has(MarkSukun) || t.Letter == nun || t.Letter == mim {
			continue
		}
		if i+1 < len(toks) && toks[i+1].Letter == t.Letter {
			v := newAdvisory(r, t.Pos, sig)
			v.Severity = ""
			out = append(out, v)
		}
	}
	return out
}

// ── Echoing ─────────────────────────────────────────────────────────────────

func detectEchoing(c *Catalog, toks []Token, sig *types.AudioSignals) []Violation {
	var out []Violation
	for i, t := range toks {
		if !t.Has(MarkSukun) {
			continue
		}
		id := "qalqalah_sughra"
		if wordFinal(toks, i) {
			id = "qalqalah_kubra"
		}
		r := c.rule(id)
		if !r.Triggers(t.Letter) {
			continue
		}
		var bounced, heard bool
		if sig != nil && sig.Echo != nil {
			bounced, heard = sig.Echo[t.Pos]
		}
		switch {
		case !heard:
			out = append(out, newAdvisory(r, t.Pos, sig))
		case !bounced:
			v := newFinding(r, t.Pos, sig)
			v.Expected = "audible bounce"
			v.Actual = "no bounce detected"
			out = append(out, v)
		}
	}
	return out
}

// ── Heavy and light letters ─────────────────────────────────────────────────

const (
	heavyVowels = MarkFatha | MarkDamma | MarkFathatan | MarkDammatan
	lightVowels = MarkKasra | MarkKasratan
)

// lamOfAllah reports whether toks[i] is the stressed lām of the name Allah
// and, if so, whether it must be read heavy. The lām is heavy after fatha or
// damma and at the start of the text.
func lamOfAllah(toks []Token, i int) (heavy, ok bool) {
	t := toks[i]
	if t.Letter != lam || !t.Has(MarkShadda) || i == 0 || i+1 >= len(toks) {
		return false, false
	}
	prev, next := toks[i-1], toks[i+1]
	if prev.Letter != lam || prev.Word != t.Word || next.Letter != ha || !wordFinal(toks, i+1) {
		return false, false
	}
	for k := i - 1; k >= 0; k-- {
		if v := toks[k].Marks & (shortVowels | tanweens); v != 0 {
			return v&heavyVowels != 0, true
		}
	}
	return true, true
}

func detectHeavyLight(c *Catalog, toks []Token, sig *types.AudioSignals) []Violation {
	var out []Violation
	emphatic := c.rule("emphatic_letters")
	for i, t := range toks {
		var (
			id     string
			expect types.Weight
		)
		switch {
		case t.Letter == ra && t.Marks&heavyVowels != 0:
			id, expect = "tafkheem_ra", types.WeightHeavy
		case t.Letter == ra && t.Marks&lightVowels != 0:
			id, expect = "tarqeeq_ra", types.WeightLight
		case emphatic.Triggers(t.Letter):
			id, expect = emphatic.ID, types.WeightHeavy
		default:
			heavy, ok := lamOfAllah(toks, i)
			if !ok || !heavy {
				continue
			}
			id, expect = "tafkheem_lam_allah", types.WeightHeavy
		}
		r := c.rule(id)

		var (
			got   types.Weight
			known bool
		)
		if sig != nil && sig.Weights != nil {
			got, known = sig.Weights[t.Pos]
		}
		switch {
		case !known:
			if t.Letter == ra {
				v := newAdvisory(r, t.Pos, sig)
				v.Severity = ""
				out = append(out, v)
			}
		case got != expect:
			v := newFinding(r, t.Pos, sig)
			v.Expected = string(expect)
			v.Actual = string(got)
			out = append(out, v)
		}
	}
	return out
}

// ── Articulation ────────────────────────────────────────────────────────────

func detectArticulation(c *Catalog, toks []Token, sig *types.AudioSignals) []Violation {
	if sig == nil || len(sig.Clarity) == 0 {
		return nil
	}
	var out []Violation
	for _, t := range toks {
		score, ok := sig.Clarity[t.Pos]
		if !ok || score >= minClarity {
			continue
		}
		r, ok := c.ownerOf(CategoryArticulation, t.Letter)
		if !ok {
			continue
		}
		v := newFinding(r, t.Pos, sig)
		v.Severity = types.SeverityMinor
		if score < majorClarity {
			v.Severity = types.SeverityMajor
		}
		v.Expected = fmt.Sprintf("clarity of at least %.2f", minClarity)
		v.Actual = fmt.Sprintf("clarity %.2f", score)
		out = append(out, v)
	}
	return out
}

// ── Stopping ────────────────────────────────────────────────────────────────

func detectStopping(c *Catalog, toks []Token, sig *types.AudioSignals) []Violation {
	if len(toks) == 0 {
		return nil
	}
	t := toks[len(toks)-1]
	if n := len(toks); n > 1 && t.Marks == 0 && (t.Letter == alif || t.Letter == alifMaqsura) &&
		toks[n-2].Word == t.Word && toks[n-2].HasTanween() {
		t = toks[n-2]
	}
	var id string
	switch {
	case t.Letter == taMarbuta:
		id = "ta_marbuta_waqf"
	case t.HasTanween():
		id = "tanween_waqf"
	case t.Vowel() != 0:
		id = "waqf_sukun"
	default:
		return nil
	}
	v := newAdvisory(c.rule(id), t.Pos, sig)
	v.Severity = ""
	return []Violation{v}
}
