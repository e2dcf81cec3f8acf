package insights

import "time"

// Type is the kind of knowledge an insight carries.
type Type string

const (
	TypeFramework   Type = "framework"
	TypeConcept     Type = "concept"
	TypeDataPoint   Type = "data_point"
	TypeMethodology Type = "methodology"
	TypeLimitation  Type = "limitation"
	TypeApplication Type = "application"
	TypeFutureWork  Type = "future_work"
	TypeKeyFinding  Type = "key_finding"
)

// Valid reports whether t is a known insight type.
func (t Type) Valid() bool {
	switch t {
	case TypeFramework, TypeConcept, TypeDataPoint, TypeMethodology,
		TypeLimitation, TypeApplication, TypeFutureWork, TypeKeyFinding:
		return true
	}
	return false
}

// Insight is a unit of extracted knowledge attached to a document.
type Insight struct {
	ID               string
	DocumentID       string
	SessionID        string
	Type             Type
	Title            string
	Description      string
	Content          map[string]any
	Confidence       float64
	ExtractionMethod string
	CreatedAt        time.Time
}

// Draft is an insight produced by extraction before it is persisted.
type Draft struct {
	Type        Type
	Title       string
	Description string
	Content     map[string]any
	Confidence  float64
	Method      string
}
