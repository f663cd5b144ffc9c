package snsl

import (
	"strconv"
	"strings"

	"github.com/Jacob-Zhou/Say-not-to-Supervised-Learning/internal/conllu"
	"github.com/Jacob-Zhou/Say-not-to-Supervised-Learning/internal/textutil"
)

// rootForm is the surface form and tag of the pseudo-root position.
const rootForm = "<root>"

// arcFeatures extracts the sparse feature strings of the arc with head h and
// dependent d. The templates are the classic arc-factored set: unigrams of
// each endpoint, form/tag bigrams, and everything conjoined with the binned
// signed distance.
func arcFeatures(sent *conllu.Sentence, d, h int) []string {
	hf, hp := rootForm, rootForm
	if h > 0 {
		hf, hp = normalizeForm(sent.Tokens[h-1].Form), sent.Tokens[h-1].UPOS
	}
	df, dp := normalizeForm(sent.Tokens[d-1].Form), sent.Tokens[d-1].UPOS

	dist := distanceBucket(d - h)
	feats := []string{
		"bias",
		"hf=" + hf,
		"hp=" + hp,
		"df=" + df,
		"dp=" + dp,
		"hf|hp=" + hf + "|" + hp,
		"df|dp=" + df + "|" + dp,
		"hf|df=" + hf + "|" + df,
		"hp|dp=" + hp + "|" + dp,
		"hf|dp=" + hf + "|" + dp,
		"hp|df=" + hp + "|" + df,
		"hp|dp|d=" + hp + "|" + dp + "|" + dist,
		"hf|df|d=" + hf + "|" + df + "|" + dist,
		"d=" + dist,
	}

	// tags between the endpoints, MST-style
	lo, hi := h, d
	if lo > hi {
		lo, hi = hi, lo
	}
	for b := lo + 1; b < hi; b++ {
		feats = append(feats, "hp|bp|dp="+hp+"|"+sent.Tokens[b-1].UPOS+"|"+dp)
	}
	return feats
}

// normalizeForm folds a surface form into its feature representation:
// halfwidth, lowercase, with pure numbers collapsed to a sentinel.
func normalizeForm(form string) string {
	form = textutil.ToHalfwidth(form)
	if textutil.IsDigit(form) {
		return "<num>"
	}
	return strings.ToLower(form)
}

// distanceBucket bins the signed head-to-dependent offset. Direction is kept
// and magnitudes above five collapse into coarse buckets.
func distanceBucket(dist int) string {
	sign := ""
	if dist < 0 {
		sign, dist = "-", -dist
	}
	switch {
	case dist <= 5:
		return sign + strconv.Itoa(dist)
	case dist <= 10:
		return sign + "6-10"
	default:
		return sign + ">10"
	}
}
