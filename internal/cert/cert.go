// Package cert renders completion certificates. A certificate exists once
// any pass finished at or above the mastery threshold; review passes in
// progress never revoke it.
package cert

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/skillpilot/skillpilot-core/internal/storage"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

// ErrNotEarned means the enrollment has no passing completed pass.
var ErrNotEarned = errors.New("certificate not earned")

type Generator struct {
	blobs storage.BlobStore
}

func NewGenerator(blobs storage.BlobStore) *Generator {
	return &Generator{blobs: blobs}
}

// Earned reports whether the enrollment qualifies: at least one completed
// pass (a review restart implies one) with a best rate at the threshold.
func Earned(enr training.Enrollment) bool {
	completedOnce := enr.IsCompleted || enr.Pass > 1
	return completedOnce && enr.BestSuccessRate >= training.PassThreshold
}

// Render returns certificate PDF bytes, serving from the blob cache when
// the same result was rendered before. The key carries the earned rate so
// an improved review pass produces a fresh document.
func (g *Generator) Render(enr training.Enrollment, course training.Course, learnerName string) ([]byte, error) {
	if !Earned(enr) {
		return nil, ErrNotEarned
	}
	key := fmt.Sprintf("certificates/%s-%d.pdf", enr.ID, int(enr.BestSuccessRate*10000))

	if ok, err := g.blobs.Exists(key); err == nil && ok {
		rc, err := g.blobs.Get(key)
		if err == nil {
			defer rc.Close()
			if data, err := io.ReadAll(rc); err == nil {
				return data, nil
			}
		}
	}

	data, err := render(enr, course, learnerName)
	if err != nil {
		return nil, err
	}
	if _, err := g.blobs.Put(key, bytes.NewReader(data)); err != nil {
		// Cache miss next time; the learner still gets their PDF.
		return data, nil
	}
	return data, nil
}

func render(enr training.Enrollment, course training.Course, learnerName string) ([]byte, error) {
	if learnerName == "" {
		learnerName = enr.LearnerID
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 28)
	pdf.CellFormat(0, 30, "Certificate of Completion", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(0, 12, "This certifies that", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "B", 22)
	pdf.CellFormat(0, 16, learnerName, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(0, 12, "successfully completed the training course", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 14, course.Title, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 10, fmt.Sprintf("with a success rate of %.0f%%", enr.BestSuccessRate*100), "", 1, "C", false, 0, "")
	pdf.Ln(8)
	pdf.CellFormat(0, 8, time.Now().Format("January 2, 2006"), "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "I", 8)
	pdf.Ln(12)
	pdf.CellFormat(0, 6, "Certificate ID: "+enr.ID, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
