package result

import (
	"encoding/json"
	"fmt"
)

// Source tags the reference variant an Evidence carries.
type Source string

const (
	SourceMySQL Source = "mysql"
	SourceRAG   Source = "rag"
)

// Ref is a pointer into the data that backs a claim. It is implemented only
// by MysqlRef and RagRef.
type Ref interface {
	Source() Source
	validate() error
}

// MysqlRef points at a single relational row.
type MysqlRef struct {
	Table   string         `json:"table"`
	PK      map[string]any `json:"pk"`
	Fields  []string       `json:"fields"`
	Locator map[string]any `json:"locator"`
}

// Source implements Ref.
func (MysqlRef) Source() Source { return SourceMySQL }

func (r MysqlRef) validate() error {
	switch {
	case r.Table == "":
		return &ValidationError{Field: "ref_mysql.table", Message: "table is required"}
	case len(r.PK) == 0:
		return &ValidationError{Field: "ref_mysql.pk", Message: "pk must be a non-empty map"}
	case len(r.Fields) == 0:
		return &ValidationError{Field: "ref_mysql.fields", Message: "fields must be a non-empty list"}
	case len(r.Locator) == 0:
		return &ValidationError{Field: "ref_mysql.locator", Message: "locator must be a non-empty map"}
	}
	return nil
}

// RagRef points at a retrieved document chunk.
type RagRef struct {
	KBSpace    string  `json:"kb_space"`
	DocumentID any     `json:"document_id"`
	ChunkID    any     `json:"chunk_id"`
	Score      float64 `json:"score"`
}

// Source implements Ref.
func (RagRef) Source() Source { return SourceRAG }

func (r RagRef) validate() error {
	if r.KBSpace == "" {
		return &ValidationError{Field: "ref_rag.kb_space", Message: "kb_space is required"}
	}
	return nil
}

// Evidence wraps exactly one Ref plus an optional excerpt and note. The zero
// value carries no reference and is rejected by Builder.
type Evidence struct {
	ref     Ref
	excerpt string
	note    string
}

// NewEvidence checks that ref is the variant named by source.
func NewEvidence(source Source, ref Ref, excerpt, note string) (Evidence, error) {
	ref = derefRef(ref)
	switch source {
	case SourceMySQL:
		if ref == nil {
			return Evidence{}, &ValidationError{Field: "ref_mysql", Message: "ref_mysql is required when source=mysql"}
		}
		if ref.Source() != SourceMySQL {
			return Evidence{}, &ValidationError{Field: "ref_rag", Message: "ref_rag must be absent when source=mysql"}
		}
	case SourceRAG:
		if ref == nil {
			return Evidence{}, &ValidationError{Field: "ref_rag", Message: "ref_rag is required when source=rag"}
		}
		if ref.Source() != SourceRAG {
			return Evidence{}, &ValidationError{Field: "ref_mysql", Message: "ref_mysql must be absent when source=rag"}
		}
	default:
		return Evidence{}, &ValidationError{Field: "source", Message: "source must be mysql or rag"}
	}
	if err := ref.validate(); err != nil {
		return Evidence{}, err
	}
	return Evidence{ref: cloneRef(ref), excerpt: excerpt, note: note}, nil
}

// NewMysqlEvidence builds evidence that points at a relational row.
func NewMysqlEvidence(ref MysqlRef, excerpt, note string) (Evidence, error) {
	return NewEvidence(SourceMySQL, ref, excerpt, note)
}

// NewRagEvidence builds evidence that points at a retrieval hit.
func NewRagEvidence(ref RagRef, excerpt, note string) (Evidence, error) {
	return NewEvidence(SourceRAG, ref, excerpt, note)
}

func derefRef(ref Ref) Ref {
	switch r := ref.(type) {
	case *MysqlRef:
		if r == nil {
			return nil
		}
		return *r
	case *RagRef:
		if r == nil {
			return nil
		}
		return *r
	}
	return ref
}

// Source returns the variant tag, or "" for the zero value.
func (e Evidence) Source() Source {
	if e.ref == nil {
		return ""
	}
	return e.ref.Source()
}

// Ref returns a copy of the wrapped reference.
func (e Evidence) Ref() Ref { return cloneRef(e.ref) }

// Mysql returns the relational reference when the evidence is a mysql one.
func (e Evidence) Mysql() (MysqlRef, bool) {
	r, ok := e.ref.(MysqlRef)
	if !ok {
		return MysqlRef{}, false
	}
	return r.clone(), true
}

// Rag returns the retrieval reference when the evidence is a rag one.
func (e Evidence) Rag() (RagRef, bool) {
	r, ok := e.ref.(RagRef)
	if !ok {
		return RagRef{}, false
	}
	return r.clone(), true
}

func (e Evidence) Excerpt() string { return e.excerpt }
func (e Evidence) Note() string    { return e.note }

type evidenceJSON struct {
	Source   Source    `json:"source"`
	RefMysql *MysqlRef `json:"ref_mysql"`
	RefRag   *RagRef   `json:"ref_rag"`
	Excerpt  string    `json:"excerpt,omitempty"`
	Note     string    `json:"note,omitempty"`
}

// MarshalJSON writes the tagged wire form with the unused variant as null.
func (e Evidence) MarshalJSON() ([]byte, error) {
	if e.ref == nil {
		return nil, &ValidationError{Field: "source", Message: "evidence has no reference"}
	}
	out := evidenceJSON{Source: e.ref.Source(), Excerpt: e.excerpt, Note: e.note}
	switch r := e.ref.(type) {
	case MysqlRef:
		out.RefMysql = &r
	case RagRef:
		out.RefRag = &r
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged wire form and enforces the same checks as
// NewEvidence. A payload that sets both variants is rejected.
func (e *Evidence) UnmarshalJSON(data []byte) error {
	var in evidenceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode evidence: %w", err)
	}
	var ref Ref
	switch in.Source {
	case SourceMySQL:
		if in.RefRag != nil {
			return &ValidationError{Field: "ref_rag", Message: "ref_rag must be absent when source=mysql"}
		}
		if in.RefMysql != nil {
			ref = *in.RefMysql
		}
	case SourceRAG:
		if in.RefMysql != nil {
			return &ValidationError{Field: "ref_mysql", Message: "ref_mysql must be absent when source=rag"}
		}
		if in.RefRag != nil {
			ref = *in.RefRag
		}
	}
	ev, err := NewEvidence(in.Source, ref, in.Excerpt, in.Note)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}
