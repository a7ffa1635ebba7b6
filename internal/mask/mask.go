// Package mask matches strings against IRC style wildcard masks.
package mask

// Match reports whether s matches the mask.
//
// In the mask, * matches any run of characters (including none) and ?
// matches exactly one character. Comparison is case insensitive using the
// rfc1459 casemapping, so []\~ match {}|^.
func Match(s, mask string) bool {
	// Position to resume from when a later character fails after a *.
	star := -1
	starS := 0

	i, j := 0, 0
	for i < len(s) {
		if j < len(mask) {
			switch mask[j] {
			case '*':
				star = j
				starS = i
				j++
				continue
			case '?':
				i++
				j++
				continue
			default:
				if fold(mask[j]) == fold(s[i]) {
					i++
					j++
					continue
				}
			}
		}

		// Mismatch. Let the most recent * swallow one more character.
		if star == -1 {
			return false
		}
		starS++
		i = starS
		j = star + 1
	}

	// Input is consumed. Only *s may remain.
	for j < len(mask) && mask[j] == '*' {
		j++
	}

	return j == len(mask)
}

func fold(c byte) byte {
	if c >= 'A' && c <= '^' {
		return c + ('a' - 'A')
	}
	return c
}
