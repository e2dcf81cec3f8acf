package documents

import "time"

// Status is the analysis state of a document.
type Status string

const (
	StatusPending      Status = "pending"
	StatusInProgress   Status = "in_progress"
	StatusCompleted    Status = "completed"
	StatusManualReview Status = "manual_review"
	StatusFailed       Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusManualReview, StatusFailed:
		return true
	}
	return false
}

// Document is a research paper plus its mutable analysis fields.
type Document struct {
	ID          string
	Title       string
	Abstract    string
	Categories  []string
	FullText    string
	SourceKey   string
	MimeType    string
	ContentHash string

	Type                   string
	EvidenceStrength       string
	PracticalApplicability string
	NoveltyScore           *float64
	AnalysisStatus         Status
	AnalysisConfidence     float64
	ClassifiedAt           *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Classification is the classifier output written back onto a document.
type Classification struct {
	Type                   string
	EvidenceStrength       string
	PracticalApplicability string
	Confidence             float64
	ClassifiedAt           time.Time
}

// Filter narrows List results.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

// Stats summarizes classification results across the corpus.
type Stats struct {
	Total             int            `json:"total"`
	ByStatus          map[Status]int `json:"byStatus"`
	ByType            map[string]int `json:"byType"`
	ByEvidence        map[string]int `json:"byEvidence"`
	ByApplicability   map[string]int `json:"byApplicability"`
	ConfidenceBuckets map[string]int `json:"confidenceBuckets"`
	AverageConfidence float64        `json:"averageConfidence"`
}

func newStats() Stats {
	return Stats{
		ByStatus:          map[Status]int{},
		ByType:            map[string]int{},
		ByEvidence:        map[string]int{},
		ByApplicability:   map[string]int{},
		ConfidenceBuckets: map[string]int{"high": 0, "medium": 0, "low": 0},
	}
}

// confidenceBucket uses the routing thresholds: high >= 0.70, medium >= 0.40.
func confidenceBucket(c float64) string {
	switch {
	case c >= 0.70:
		return "high"
	case c >= 0.40:
		return "medium"
	default:
		return "low"
	}
}

// add folds n documents sharing the same attributes into the stats.
func (s *Stats) add(status Status, docType, evidence, applicability string, bucket string, n int, confidenceSum float64) {
	prevTotal := s.Total
	s.Total += n
	s.ByStatus[status] += n
	if docType != "" {
		s.ByType[docType] += n
	}
	if evidence != "" {
		s.ByEvidence[evidence] += n
	}
	if applicability != "" {
		s.ByApplicability[applicability] += n
	}
	s.ConfidenceBuckets[bucket] += n
	if s.Total > 0 {
		s.AverageConfidence = (s.AverageConfidence*float64(prevTotal) + confidenceSum) / float64(s.Total)
	}
}
