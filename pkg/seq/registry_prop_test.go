package seq

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var (
	genSequence   = rapid.StringMatching(`[ACDEFGHIKLMNPQRSTVWY]{1,40}\*?`)
	genDescriptor = rapid.StringMatching(`[a-z][a-z0-9_]{0,8}`)
)

func TestPropAddTwiceIsDuplicate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := NewRegistry()
		d := genDescriptor.Draw(t, "descriptor")
		s := genSequence.Draw(t, "sequence")

		if got := reg.Add(d, s); got != Added {
			t.Fatalf("first add: got %v", got)
		}
		if got := reg.Add(d, s); got != Duplicate {
			t.Fatalf("second add: got %v", got)
		}
		if reg.Len() != 1 {
			t.Fatalf("registry grew to %d", reg.Len())
		}
	})
}

func TestPropSameSequenceOtherDescriptor(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := NewRegistry()
		s := genSequence.Draw(t, "sequence")
		d1 := genDescriptor.Draw(t, "d1")
		d2 := genDescriptor.Filter(func(d string) bool { return d != d1 }).Draw(t, "d2")

		reg.Add(d1, s)
		if got := reg.Add(d2, s); got != Duplicate {
			t.Fatalf("got %v, want duplicate", got)
		}
	})
}

func TestPropForeignCharacterIsInvalid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := NewRegistry()
		reg.Add("keep", "MKTAYIAK")
		before := reg.FASTA()

		s := genSequence.Draw(t, "sequence")
		bad := rapid.SampledFrom([]string{"B", "J", "O", "U", "X", "Z", "a", "m", "-", " ", ".", "1", "\n", "é"}).Draw(t, "bad")
		at := rapid.IntRange(0, len(s)).Draw(t, "at")
		mixed := s[:at] + bad + s[at:]

		if got := reg.Add(genDescriptor.Draw(t, "descriptor"), mixed); got != Invalid {
			t.Fatalf("%q: got %v, want invalid", mixed, got)
		}
		if reg.FASTA() != before {
			t.Fatalf("registry modified by invalid insert")
		}
	})
}

func TestPropFastaRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := NewRegistry()
		seqs := rapid.SliceOfNDistinct(genSequence, 1, 20, rapid.ID[string]).Draw(t, "sequences")
		for _, s := range seqs {
			d := rapid.OneOf(genDescriptor, rapid.Just("")).Draw(t, "descriptor")
			if got := reg.Add(d, s); got != Added {
				t.Fatalf("add %q: %v", s, got)
			}
		}

		records, err := ParseFasta(strings.NewReader(reg.FASTA()))
		if err != nil {
			t.Fatal(err)
		}
		want := reg.Sequences()
		if len(records) != len(want) {
			t.Fatalf("got %d records, want %d", len(records), len(want))
		}
		for _, rec := range records {
			if want[rec.Header] != rec.Sequence {
				t.Fatalf("%s: got %q, want %q", rec.Header, rec.Sequence, want[rec.Header])
			}
		}
	})
}
