package seq

// Source records which resolver produced a set of structure identifiers.
type Source string

const (
	SourceNone      Source = ""
	SourcePDB       Source = "pdb"
	SourceAlphaFold Source = "alphafold"
)

func (s Source) String() string {
	if s == SourceNone {
		return "none"
	}
	return string(s)
}

// Structures is a provenance tag with the identifiers it applies to.
type Structures struct {
	Source Source   `json:"source" yaml:"source"`
	IDs    []string `json:"ids" yaml:"ids"`
}

// NewStructures builds a Structures value, dropping empty and repeated ids.
func NewStructures(src Source, ids ...string) Structures {
	st := Structures{Source: src}
	for _, id := range ids {
		st = st.With(id)
	}
	return st
}

// FromList parses the flat form used in reports: tag first, ids after.
func FromList(list []string) Structures {
	if len(list) == 0 {
		return Structures{}
	}
	return NewStructures(Source(list[0]), list[1:]...)
}

// List returns the flat form, or nil when there are no ids.
func (s Structures) List() []string {
	if s.Empty() {
		return nil
	}
	out := make([]string, 0, len(s.IDs)+1)
	out = append(out, string(s.Source))
	return append(out, s.IDs...)
}

func (s Structures) Empty() bool {
	return len(s.IDs) == 0
}

func (s Structures) Contains(id string) bool {
	for _, have := range s.IDs {
		if have == id {
			return true
		}
	}
	return false
}

// With returns s with id appended unless it is empty or already present.
func (s Structures) With(id string) Structures {
	if id == "" || s.Contains(id) {
		return s
	}
	ids := make([]string, len(s.IDs), len(s.IDs)+1)
	copy(ids, s.IDs)
	s.IDs = append(ids, id)
	return s
}

func (s Structures) clone() Structures {
	if s.IDs != nil {
		s.IDs = append([]string(nil), s.IDs...)
	}
	return s
}
