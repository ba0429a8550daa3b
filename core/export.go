package session

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/quietroom/reflect-core/core/summary"
)

// ExportDocument is the on-demand JSON export of a session: the transcript,
// the summary if one exists, and the session creation timestamp.
type ExportDocument struct {
	Messages  []Turn            `json:"messages"`
	Summary   *summary.Artifact `json:"summary,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Export writes the session's current state as a JSON document. Exporting
// and re-parsing yields the same transcript and summary.
func (s *Session) Export(w io.Writer) error {
	s.mu.Lock()
	doc := ExportDocument{
		Summary:   s.summary,
		CreatedAt: s.createdAt,
	}
	s.mu.Unlock()
	doc.Messages = s.transcript.snapshot()

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("error encoding export: %w", err)
	}
	return nil
}

// ParseExport reads a previously exported session document.
func ParseExport(r io.Reader) (*ExportDocument, error) {
	doc := &ExportDocument{}
	if err := json.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("error decoding export: %w", err)
	}
	return doc, nil
}
