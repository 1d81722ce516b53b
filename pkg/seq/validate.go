package seq

// Alphabet holds the 20 canonical amino acids plus the stop symbol.
// Ambiguity codes (B, J, O, U, Z, X) and gaps are rejected.
const Alphabet = "ACDEFGHIKLMNPQRSTVWY*"

var allowed [256]bool

func init() {
	for i := 0; i < len(Alphabet); i++ {
		allowed[Alphabet[i]] = true
	}
}

// IsValid reports whether s is a non-empty amino acid sequence. It does not
// normalise case or whitespace.
func IsValid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !allowed[s[i]] {
			return false
		}
	}
	return true
}
