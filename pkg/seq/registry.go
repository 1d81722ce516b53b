// Registry of unique amino acid sequences and the structures/accessions
// resolved for them.

package seq

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidSequence    = errors.New("invalid amino acid sequence")
	ErrDuplicateSequence  = errors.New("duplicate sequence")
	ErrDescriptorMismatch = errors.New("descriptor does not match a stored sequence")
)

// DescriptorWindow bounds how far ResolveDescriptor walks the numeric
// suffix of a descriptor in either direction.
const DescriptorWindow = 3

// Prefix used for entries added without a descriptor.
const autoPrefix = "seq_"

// Outcome of adding a sequence to a Registry.
type Outcome int

const (
	Added Outcome = iota
	Invalid
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Invalid:
		return "invalid"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Err maps a rejection to its sentinel error, nil for Added.
func (o Outcome) Err() error {
	switch o {
	case Invalid:
		return ErrInvalidSequence
	case Duplicate:
		return ErrDuplicateSequence
	default:
		return nil
	}
}

type entry struct {
	sequence   string
	structures Structures
	accessions []string
}

// Registry holds unique (descriptor, sequence) pairs in insertion order.
// It is not safe for concurrent mutation.
type Registry struct {
	entries   map[string]*entry
	order     []string
	bySeq     map[string]string // sequence -> descriptor
	autoNamed int
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		bySeq:   make(map[string]string),
	}
}

// Add stores sequence under descriptor. An empty descriptor becomes seq_N and
// a taken descriptor gets the lowest free _K suffix.
func (r *Registry) Add(descriptor, sequence string) Outcome {
	if !IsValid(sequence) {
		return Invalid
	}
	if _, ok := r.bySeq[sequence]; ok {
		return Duplicate
	}

	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		r.autoNamed++
		descriptor = autoPrefix + strconv.Itoa(r.autoNamed)
	}
	descriptor = r.freeDescriptor(descriptor)

	r.entries[descriptor] = &entry{sequence: sequence}
	r.order = append(r.order, descriptor)
	r.bySeq[sequence] = descriptor
	return Added
}

func (r *Registry) freeDescriptor(d string) string {
	if _, taken := r.entries[d]; !taken {
		return d
	}
	for k := 1; ; k++ {
		candidate := d + "_" + strconv.Itoa(k)
		if _, taken := r.entries[candidate]; !taken {
			return candidate
		}
	}
}

// ResolveDescriptor finds the stored descriptor that d refers to. Reports
// written by other tools may number duplicates differently, so besides d
// itself the nearby _K suffixes of d's base are tried, nearest first. With
// a non-empty sequence the candidate must hold exactly that sequence.
func (r *Registry) ResolveDescriptor(d, sequence string) (string, error) {
	d = strings.TrimSpace(d)
	sequence = strings.TrimSpace(sequence)

	if r.matches(d, sequence) {
		return d, nil
	}
	if sequence == "" {
		return "", fmt.Errorf("%w: %q", ErrDescriptorMismatch, d)
	}

	base, k := splitSuffix(d)
	for delta := 0; delta <= DescriptorWindow; delta++ {
		for _, n := range []int{k + delta, k - delta} {
			if n < 0 {
				continue
			}
			candidate := base
			if n > 0 {
				candidate = base + "_" + strconv.Itoa(n)
			}
			if candidate != d && r.matches(candidate, sequence) {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrDescriptorMismatch, d)
}

func (r *Registry) matches(d, sequence string) bool {
	e, ok := r.entries[d]
	if !ok {
		return false
	}
	return sequence == "" || e.sequence == sequence
}

// splitSuffix splits "name_12" into ("name", 12). Descriptors without a
// numeric suffix come back whole with 0.
func splitSuffix(d string) (string, int) {
	i := strings.LastIndexByte(d, '_')
	if i <= 0 || i == len(d)-1 {
		return d, 0
	}
	tail := d[i+1:]
	for j := 0; j < len(tail); j++ {
		if tail[j] < '0' || tail[j] > '9' {
			return d, 0
		}
	}
	n, err := strconv.Atoi(tail)
	if err != nil || n == 0 || strconv.Itoa(n) != tail {
		return d, 0
	}
	return d[:i], n
}

// AttachStructures replaces the structures of the entry matching
// (descriptor, sequence). It returns false, leaving the registry untouched,
// when structures is empty or the descriptor cannot be resolved.
func (r *Registry) AttachStructures(descriptor string, structures Structures, sequence string) bool {
	if structures.Empty() {
		return false
	}
	d, err := r.ResolveDescriptor(descriptor, sequence)
	if err != nil {
		return false
	}
	r.entries[d].structures = structures.clone()
	return true
}

// AttachStructuresTrusted is AttachStructures for callers that already know
// the descriptor is right, e.g. one taken from a report of this registry.
func (r *Registry) AttachStructuresTrusted(descriptor string, structures Structures) bool {
	if structures.Empty() {
		return false
	}
	e, ok := r.entries[descriptor]
	if !ok {
		return false
	}
	e.structures = structures.clone()
	return true
}

// AttachAccessions appends accessions to the entry matching
// (descriptor, sequence), skipping ones it already holds.
func (r *Registry) AttachAccessions(descriptor string, accessions []string, sequence string) bool {
	if len(accessions) == 0 {
		return false
	}
	d, err := r.ResolveDescriptor(descriptor, sequence)
	if err != nil {
		return false
	}
	r.entries[d].appendAccessions(accessions)
	return true
}

// AttachAccessionsTrusted appends accessions without verifying the descriptor
// against a sequence.
func (r *Registry) AttachAccessionsTrusted(descriptor string, accessions []string) bool {
	if len(accessions) == 0 {
		return false
	}
	e, ok := r.entries[descriptor]
	if !ok {
		return false
	}
	e.appendAccessions(accessions)
	return true
}

func (e *entry) appendAccessions(accessions []string) {
	for _, a := range accessions {
		if a == "" || containsString(e.accessions, a) {
			continue
		}
		e.accessions = append(e.accessions, a)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	return len(r.order)
}

func (r *Registry) Has(descriptor string) bool {
	_, ok := r.entries[descriptor]
	return ok
}

// Descriptors returns the descriptors in insertion order.
func (r *Registry) Descriptors() []string {
	return append([]string(nil), r.order...)
}

// Sequences returns a copy of the descriptor -> sequence mapping.
func (r *Registry) Sequences() map[string]string {
	out := make(map[string]string, len(r.entries))
	for d, e := range r.entries {
		out[d] = e.sequence
	}
	return out
}

// SequenceSet returns every stored sequence.
func (r *Registry) SequenceSet() map[string]struct{} {
	out := make(map[string]struct{}, len(r.bySeq))
	for s := range r.bySeq {
		out[s] = struct{}{}
	}
	return out
}

// Structures returns a copy of every non-empty descriptor -> structures entry.
func (r *Registry) Structures() map[string]Structures {
	out := make(map[string]Structures)
	for d, e := range r.entries {
		if !e.structures.Empty() {
			out[d] = e.structures.clone()
		}
	}
	return out
}

// Accessions returns a copy of every non-empty descriptor -> accessions entry.
func (r *Registry) Accessions() map[string][]string {
	out := make(map[string][]string)
	for d, e := range r.entries {
		if len(e.accessions) > 0 {
			out[d] = append([]string(nil), e.accessions...)
		}
	}
	return out
}

// Sequence returns the sequence for descriptor, "" when unknown.
func (r *Registry) Sequence(descriptor string) string {
	if e, ok := r.entries[descriptor]; ok {
		return e.sequence
	}
	return ""
}

// DescriptorOf returns the descriptor holding sequence.
func (r *Registry) DescriptorOf(sequence string) (string, bool) {
	d, ok := r.bySeq[sequence]
	return d, ok
}

func (r *Registry) StructuresOf(descriptor string) Structures {
	if e, ok := r.entries[descriptor]; ok {
		return e.structures.clone()
	}
	return Structures{}
}

func (r *Registry) AccessionsOf(descriptor string) []string {
	if e, ok := r.entries[descriptor]; ok {
		return append([]string(nil), e.accessions...)
	}
	return nil
}

// FASTA serialises every entry as ">descriptor\nsequence\n" in insertion order.
func (r *Registry) FASTA() string {
	var b strings.Builder
	for _, d := range r.order {
		b.WriteString(">")
		b.WriteString(d)
		b.WriteString("\n")
		b.WriteString(r.entries[d].sequence)
		b.WriteString("\n")
	}
	return b.String()
}
