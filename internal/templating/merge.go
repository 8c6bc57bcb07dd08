/*
Copyright © 2025 The laszoo Authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package templating

// Merge folds an edited file's content back into its own template,
// incorporating the edits verbatim while leaving every {{ name }} and
// [[x ... x]] marker structurally intact wherever it still matches the
// unedited portion of the rendered output (spec.md §4.3).
//
// The contract (spec.md §4.3, §8 invariant 3):
//
//	Render(Merge(t, Render(t)))              == Render(t)
//	Merge(t, Render(t))                      == t
//	Render(Merge(t, f))                      == f
//	    whenever every marker/variable in t still has an unchanged span in f
//
// vars and quackValues must be the same arguments that produced the
// document's current rendered form, so the merge can locate which bytes of
// the edited content actually changed.
//
// Merge finds the templated document's rendered form, then the longest
// byte-identical prefix and (non-overlapping) suffix shared with the
// edited content f. Tokens wholly inside the matching prefix or suffix
// keep their original raw form (so markers and variables survive
// untouched); everything between is replaced, verbatim, with the
// corresponding slice of f. This reproduces t exactly when f == Render(t)
// (prefix consumes the whole string, so there is no edited middle), and
// always reproduces f on render, regardless of where inside t the edit
// landed.
func Merge(tmpl string, vars Vars, quackValues []string, edited string) (string, error) {
	rendered, err := Render(tmpl, vars, quackValues)
	if err != nil {
		return "", err
	}
	if rendered == edited {
		return tmpl, nil
	}

	prefixLen := commonPrefixLen(rendered, edited)
	suffixLen := commonSuffixLen(rendered[prefixLen:], edited[prefixLen:])

	tokens := parse(tmpl)

	// Walk tokens accumulating their rendered length, splitting any token
	// that straddles the prefix/suffix boundary into the raw bytes
	// falling inside the unchanged region (kept literally, since we have
	// no marker/variable form for a partial token) and the bytes falling
	// inside the edited region (dropped; replaced wholesale below).
	var head, tail []string
	renderedPos := 0
	totalRendered := len(rendered)
	suffixStart := totalRendered - suffixLen
	quackIdx := 0

	for _, tok := range tokens {
		tokRendered, consumedQuack := renderOne(tok, vars, quackValues, quackIdx)
		if consumedQuack {
			quackIdx++
		}
		tokStart := renderedPos
		tokEnd := renderedPos + len(tokRendered)
		renderedPos = tokEnd

		switch {
		case tokEnd <= prefixLen:
			// Token falls wholly before the edit: keep its original
			// structured form (marker or variable reference intact).
			head = append(head, tok.raw)
		case tokStart >= suffixStart:
			tail = append(tail, tok.raw)
		default:
			// Token overlaps the edited middle. It may still contribute an
			// unchanged leading slice to head and/or an unchanged trailing
			// slice to tail — both, if the whole edit landed inside this
			// one token — as literal bytes, since a partial token has no
			// structured form of its own.
			if tokStart < prefixLen {
				head = append(head, tokRendered[:prefixLen-tokStart])
			}
			if tokEnd > suffixStart {
				tail = append(tail, tokRendered[suffixStart-tokStart:])
			}
		}
		// The portion of a token falling strictly inside the edited middle
		// contributes nothing; the edited content supplies that span below.
	}

	middle := edited[prefixLen : len(edited)-suffixLen]

	out := ""
	for _, h := range head {
		out += h
	}
	out += middle
	for _, tval := range tail {
		out += tval
	}
	return out, nil
}

// renderOne renders a single token exactly as Render's loop would at
// position quackIdx in the quack queue, also reporting whether it consumed
// a quack value (so the caller can advance its own index in lockstep).
func renderOne(tok token, vars Vars, quackValues []string, quackIdx int) (string, bool) {
	switch tok.kind {
	case tokenMarker:
		return tok.content, false
	case tokenVar:
		if tok.name == quackVarName {
			if quackIdx < len(quackValues) {
				return quackValues[quackIdx], true
			}
			return "", false
		}
		return vars[tok.name], false
	default:
		return tok.literal, false
	}
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}
