// Package report renders a finished or in-progress interview as a PDF.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"

	"github.com/ent0n29/mockinterview/internal/interview"
)

// Render builds a one-document summary of snap: every question with its score
// and feedback, the average score and the time taken.
func Render(sessionID string, snap interview.Snapshot) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("Render panic recover: %v", r)
		}
	}()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetTitle("Mock interview report", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Mock interview report")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Session: %s", sessionID)))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Answered: %d of %d", snap.Answered, snap.MaxQuestions))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Average score: %.1f / 10", snap.AverageScore))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Duration: %s", snap.Duration.Round(time.Second)))
	pdf.Ln(10)

	for i, resp := range snap.Responses {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("%d. %s", i+1, resp.Question)), "", "L", false)
		pdf.SetFont("Helvetica", "", 11)
		pdf.Cell(0, 6, fmt.Sprintf("Score: %.1f", resp.Evaluation.Score))
		pdf.Ln(6)
		pdf.MultiCell(0, 5, tr(resp.Evaluation.Feedback), "", "L", false)
		pdf.Ln(4)
	}
	if pdf.Error() != nil {
		return nil, pdf.Error()
	}

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
