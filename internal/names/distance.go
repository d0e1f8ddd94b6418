package names

// DamerauLevenshtein computes the edit distance between two strings counting
// insertion, deletion, substitution, and transposition of adjacent runes.
// Transpositions matter for names: "Hanah"/"Hannah" and "Jaocb"/"Jacob" are
// one operation apart.
func DamerauLevenshtein(a, b string) int {
	r1 := []rune(a)
	r2 := []rune(b)
	len1 := len(r1)
	len2 := len(r2)

	if len1 == 0 {
		return len2
	}
	if len2 == 0 {
		return len1
	}

	prev2 := make([]int, len2+1) // row i-2
	prev := make([]int, len2+1)  // row i-1
	curr := make([]int, len2+1)  // row i

	for j := 0; j <= len2; j++ {
		prev[j] = j
	}

	for i := 1; i <= len1; i++ {
		curr[0] = i
		for j := 1; j <= len2; j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}

			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)

			if i > 1 && j > 1 && r1[i-1] == r2[j-2] && r1[i-2] == r2[j-1] {
				if t := prev2[j-2] + 1; t < curr[j] {
					curr[j] = t
				}
			}
		}
		prev2, prev, curr = prev, curr, prev2
	}

	return prev[len2]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
