package names

import "strings"

// soundexCodes maps consonants to their Soundex digit. Vowels and the
// letters h, w, y are separators and carry no digit.
var soundexCodes = map[byte]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// Soundex encodes a normalized name token as a letter plus three digits.
func Soundex(token string) string {
	token = Normalize(token)
	if token == "" {
		return ""
	}

	var b strings.Builder
	first := token[0]
	b.WriteByte(first - 'a' + 'A')

	lastCode := soundexCodes[first]

	for i := 1; i < len(token) && b.Len() < 4; i++ {
		ch := token[i]
		code, ok := soundexCodes[ch]
		if !ok {
			// h and w do not reset the previous code; vowels do.
			if ch != 'h' && ch != 'w' {
				lastCode = 0
			}
			continue
		}
		if code != lastCode {
			b.WriteByte(code)
			lastCode = code
		}
	}

	for b.Len() < 4 {
		b.WriteByte('0')
	}
	return b.String()
}

// Metaphone produces a simplified metaphone-class encoding: enough to match
// "Geoff"/"Jeff" and "Kathryn"/"Catherine" class variants without the full
// rule table.
func Metaphone(token string) string {
	t := Normalize(token)
	if t == "" {
		return ""
	}

	// Leading digraph simplifications.
	switch {
	case strings.HasPrefix(t, "kn"), strings.HasPrefix(t, "gn"), strings.HasPrefix(t, "pn"), strings.HasPrefix(t, "wr"):
		t = t[1:]
	case strings.HasPrefix(t, "x"):
		t = "s" + t[1:]
	case strings.HasPrefix(t, "wh"):
		t = "w" + t[2:]
	}

	var b strings.Builder
	runes := []rune(t)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		// Skip doubled letters.
		if i > 0 && runes[i-1] == c && c != 'c' {
			continue
		}

		switch c {
		case 'a', 'e', 'i', 'o', 'u':
			if i == 0 {
				b.WriteRune('a') // initial vowels collapse to one class
			}
		case 'b':
			// Silent terminal b after m ("lamb").
			if !(i == len(runes)-1 && i > 0 && runes[i-1] == 'm') {
				b.WriteRune('b')
			}
		case 'c':
			switch {
			case next == 'h':
				b.WriteRune('x') // "ch"
				i++
			case next == 'i' || next == 'e' || next == 'y':
				b.WriteRune('s')
			default:
				b.WriteRune('k')
			}
		case 'd':
			if next == 'g' {
				b.WriteRune('j') // "dge"
				i++
			} else {
				b.WriteRune('t')
			}
		case 'g':
			switch {
			case next == 'h':
				b.WriteRune('k')
				i++
			case next == 'e' || next == 'i' || next == 'y':
				b.WriteRune('j')
			default:
				b.WriteRune('k')
			}
		case 'j':
			b.WriteRune('j')
		case 'k':
			b.WriteRune('k')
		case 'p':
			if next == 'h' {
				b.WriteRune('f')
				i++
			} else {
				b.WriteRune('p')
			}
		case 'q':
			b.WriteRune('k')
		case 's':
			if next == 'h' {
				b.WriteRune('x')
				i++
			} else {
				b.WriteRune('s')
			}
		case 't':
			if next == 'h' {
				b.WriteRune('0') // theta
				i++
			} else {
				b.WriteRune('t')
			}
		case 'v':
			b.WriteRune('f')
		case 'w', 'y':
			// Only sounded before a vowel.
			if next == 'a' || next == 'e' || next == 'i' || next == 'o' || next == 'u' {
				b.WriteRune(c)
			}
		case 'x':
			b.WriteString("ks")
		case 'z':
			b.WriteRune('s')
		case 'f', 'l', 'm', 'n', 'r':
			b.WriteRune(c)
		case 'h':
			// Sounded only between vowels.
			if i > 0 && isVowel(runes[i-1]) && isVowel(next) {
				b.WriteRune('h')
			}
		}
	}
	return b.String()
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// PhoneticMatch reports how strongly two tokens agree by sound: 2 when both
// Soundex and Metaphone agree, 1 when only one does, 0 otherwise.
func PhoneticMatch(a, b string) int {
	score := 0
	if sa, sb := Soundex(a), Soundex(b); sa != "" && sa == sb {
		score++
	}
	if ma, mb := Metaphone(a), Metaphone(b); ma != "" && ma == mb {
		score++
	}
	return score
}
