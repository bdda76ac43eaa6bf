package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category classifies a notice shown to an operator or API caller
type Category int

const (
	CategoryIgnore Category = iota
	CategoryWarning
	CategoryError
	CategoryInformation
	CategorySuccess
)

var categoryNames = [...]string{"Ignore", "Warning", "Error", "Information", "Success"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for i, name := range categoryNames {
		if strings.EqualFold(name, s) {
			*c = Category(i)
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", s)
}

// Notice is a (category, title, text) notification. Report is set when the
// notice describes an ingestion run.
type Notice struct {
	Category Category   `json:"category"`
	Title    string     `json:"title"`
	Text     string     `json:"text"`
	Report   *RunReport `json:"report,omitempty"`
}

type RunOutcome string

const (
	OutcomeIngested    RunOutcome = "ingested"
	OutcomeEmpty       RunOutcome = "empty"
	OutcomeFetchFailed RunOutcome = "fetch_failed"
	OutcomeFailed      RunOutcome = "failed"
)

// RunReport summarizes one ingestion run
type RunReport struct {
	Source      string     `json:"source"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  time.Time  `json:"finishedAt"`
	Fetched     int        `json:"fetched"`
	Inserted    int        `json:"inserted"`
	Incremented int        `json:"incremented"`
	Recovered   int        `json:"recovered"`
	Rejected    int        `json:"rejected"`
	Outcome     RunOutcome `json:"outcome"`
	Error       string     `json:"error,omitempty"`
}

func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Notice derives the notification published for this run.
func (r RunReport) Notice() Notice {
	n := Notice{Report: &r}
	switch r.Outcome {
	case OutcomeIngested:
		n.Category = CategorySuccess
		n.Title = "Facts ingested"
		n.Text = fmt.Sprintf("%d new, %d repeated", r.Inserted, r.Incremented+r.Recovered)
	case OutcomeEmpty:
		n.Category = CategoryInformation
		n.Title = "No facts to persist"
		n.Text = "The source returned no usable facts"
	case OutcomeFetchFailed:
		n.Category = CategoryWarning
		n.Title = "Fetch failed"
		n.Text = r.Error
	default:
		n.Category = CategoryError
		n.Title = "Ingestion failed"
		n.Text = r.Error
	}
	return n
}
