package dedup

// sequenceRatio is a Ratcliff/Obershelp similarity ratio over runes:
// 2*matches/(len(a)+len(b)), where matches is the total length of the
// longest common substring and, recursively, the longest common substrings
// of the pieces to its left and right.
func sequenceRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	matches := matchingRunes(ra, rb)
	return 2.0 * float64(matches) / float64(len(ra)+len(rb))
}

func matchingRunes(a, b []rune) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingRunes(a[:ai], b[:bi])
	total += matchingRunes(a[ai+size:], b[bi+size:])
	return total
}

// longestCommonSubstring returns the start indices and length of the longest
// run of runes common to a and b. Dynamic programming over a single row.
func longestCommonSubstring(a, b []rune) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					ai = i - size
					bi = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return ai, bi, size
}
