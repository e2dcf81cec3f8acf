package tags

import "time"

// Category is the closed set of tag vocabularies.
type Category string

const (
	CategoryDomain           Category = "domain"
	CategoryConcept          Category = "concept"
	CategoryMethodology      Category = "methodology"
	CategoryApplication      Category = "application"
	CategoryInnovationMarker Category = "innovation-marker"
)

// Categories lists every category in a stable order.
func Categories() []Category {
	return []Category{CategoryDomain, CategoryConcept, CategoryMethodology, CategoryApplication, CategoryInnovationMarker}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryDomain, CategoryConcept, CategoryMethodology, CategoryApplication, CategoryInnovationMarker:
		return true
	}
	return false
}

// Source records who attached a tag.
type Source string

const (
	SourceAutomatic Source = "automatic"
	SourceManual    Source = "manual"
	SourceOverride  Source = "override"
)

// Tag is a canonical label. Name is unique within Category.
type Tag struct {
	ID          string
	Name        string
	Category    Category
	ParentID    *string
	Description string
	CreatedAt   time.Time
}

// Link is one tag edge on a document or insight.
type Link struct {
	Tag        Tag
	Confidence float64
	Source     Source
}

// Action describes how a term was resolved to a tag.
type Action string

const (
	ActionExact      Action = "exact"
	ActionReuse      Action = "reuse"
	ActionGeneralize Action = "generalize"
	ActionCreate     Action = "create"
)

// Resolution is the outcome of resolving one candidate term.
type Resolution struct {
	Term       string
	Tag        Tag
	Action     Action
	Similarity float64
	// Created is true when this call, or an identical call it joined,
	// inserted the tag.
	Created bool
}
