package services

import (
	"context"
	"errors"

	"rupee/internal/core"
	"rupee/internal/dedup"
	"rupee/internal/extractor"
	"rupee/internal/ledger"
	"rupee/internal/log"
)

var ErrExtractorDisabled = errors.New("expense extractor is not configured")

// Extractor is the part of the extractor client the service uses.
type Extractor interface {
	AnalyzeImage(ctx context.Context, principalID, filename, contentType string, data []byte) (extractor.Parsed, error)
	AnalyzeTranscript(ctx context.Context, principalID, transcript string) (extractor.Parsed, error)
	ParseText(text string) (extractor.Parsed, error)
}

// ExtractSource is one of an image, a transcript or pasted JSON text.
type ExtractSource struct {
	Image       []byte
	Filename    string
	ContentType string
	Transcript  string
	Text        string
}

// CandidateOutcome reports what happened to one extracted candidate.
type CandidateOutcome struct {
	Index       int
	Candidate   extractor.Candidate
	Duplicate   bool
	DuplicateOf int
	Result      *ledger.AppendResult
	Err         error
}

type ExtractReport struct {
	Outcomes []CandidateOutcome
	Rejected []*core.ValidationError
}

// Extract analyzes src and, unless preview is set, appends every valid
// candidate in order. With preview set nothing is written and each
// candidate is only checked against the cache for duplicates.
//
// A cancelled ctx discards the analysis before anything reaches the store.
func (s *LedgerService) Extract(ctx context.Context, src ExtractSource, preview bool) (ExtractReport, error) {
	p, st, err := s.session()
	if err != nil {
		return ExtractReport{}, err
	}
	if s.extractor == nil {
		return ExtractReport{}, ErrExtractorDisabled
	}

	var parsed extractor.Parsed
	switch {
	case len(src.Image) > 0:
		parsed, err = s.extractor.AnalyzeImage(ctx, p.ID, src.Filename, src.ContentType, src.Image)
	case src.Transcript != "":
		parsed, err = s.extractor.AnalyzeTranscript(ctx, p.ID, src.Transcript)
	default:
		parsed, err = s.extractor.ParseText(src.Text)
	}
	if err != nil {
		return ExtractReport{}, err
	}
	if err := ctx.Err(); err != nil {
		return ExtractReport{}, err
	}

	report := ExtractReport{Rejected: parsed.Rejected}
	for i, c := range parsed.Candidates {
		out := CandidateOutcome{Index: i, Candidate: c}
		if preview {
			out.DuplicateOf, out.Duplicate = dedup.FindDuplicate(st.Snapshot(), c.Entry())
			report.Outcomes = append(report.Outcomes, out)
			continue
		}
		res, err := s.append(ctx, p, st, c.Entry())
		out.Result = &res
		out.Err = err
		if res.Reason == core.ReasonDuplicate {
			out.Duplicate, out.DuplicateOf = true, res.Position
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	s.logger.InfoContext(ctx, "Extraction processed",
		log.FieldPrincipalID, p.ID,
		"candidates", len(parsed.Candidates),
		"rejected", len(parsed.Rejected),
		"preview", preview,
		log.FieldOperation, log.OpExtract)
	return report, nil
}
