// Package ingest turns an uploaded file or zip archive into persisted
// Document rows plus queued OCR jobs (spec.md §4.2), grounded on the
// teacher's transactional funding.Processor.Process pattern: everything
// that must be visible together (document row, job row) commits in one
// gorm transaction.
package ingest

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"casepilot/internal/pipelineerr"
	"casepilot/internal/storage"
	"casepilot/internal/store"
)

// ignoredEntries are zip members that never become Documents: OS metadata
// files and directory markers some archivers emit.
var ignoredEntries = map[string]bool{
	".DS_Store": true,
}

func isIgnored(name string) bool {
	base := filepath.Base(name)
	if ignoredEntries[base] {
		return true
	}
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return true
	}
	return strings.HasSuffix(name, "/")
}

// allowedExtensions are the file types the pipeline knows how to OCR and
// classify.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tiff": true,
	".tif":  true,
}

// Limits bounds a single ingest call (spec.md §4.2 edge cases).
type Limits struct {
	MaxFileBytes int64
	MaxCaseBytes int64
}

// Result summarizes what an ingest call produced.
type Result struct {
	Accepted []AcceptedEntry
	Skipped  []SkippedEntry
}

// AcceptedEntry records one created Document, preserving its original
// filename for the upload response (spec.md §6: `created:[{doc_id,type?,filename}]`).
type AcceptedEntry struct {
	DocID    uuid.UUID
	Filename string
}

// SkippedEntry records a file that was not ingested and why.
type SkippedEntry struct {
	Name   string
	Reason string
}

// Ingester creates Document rows and OCR jobs from uploaded content.
type Ingester struct {
	DB     *gorm.DB
	Blobs  *storage.Store
	Limits Limits
	Now    func() time.Time
}

// New returns an Ingester with sane default limits and clock.
func New(db *gorm.DB, blobs *storage.Store, limits Limits) *Ingester {
	now := time.Now
	if limits.MaxFileBytes <= 0 {
		limits.MaxFileBytes = 25 * 1024 * 1024
	}
	if limits.MaxCaseBytes <= 0 {
		limits.MaxCaseBytes = 100 * 1024 * 1024
	}
	return &Ingester{DB: db, Blobs: blobs, Limits: limits, Now: now}
}

// IngestFile ingests a single named file's bytes for caseID.
func (ig *Ingester) IngestFile(caseID uuid.UUID, filename string, content []byte) (uuid.UUID, error) {
	if int64(len(content)) > ig.Limits.MaxFileBytes {
		return uuid.Nil, pipelineerr.Newf(pipelineerr.CodeValidation, "file %q exceeds max size", filename)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return uuid.Nil, pipelineerr.Newf(pipelineerr.CodeValidation, "file %q has unsupported extension %q", filename, ext)
	}
	return ig.persist(caseID, filename, ext, content)
}

// IngestZip expands a zip archive and ingests every eligible member,
// skipping ignored/oversized/disallowed entries rather than failing the
// whole upload (spec.md §4.2 edge cases).
func (ig *Ingester) IngestZip(caseID uuid.UUID, zipBytes []byte) (*Result, error) {
	r, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.CodeValidation, "not a valid zip archive", err)
	}
	result := &Result{}
	var caseBytesTotal int64

	for _, f := range r.File {
		if isIgnored(f.Name) {
			continue
		}
		if f.UncompressedSize64 == 0 {
			result.Skipped = append(result.Skipped, SkippedEntry{Name: f.Name, Reason: "zero_length"})
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.Name))
		if !allowedExtensions[ext] {
			result.Skipped = append(result.Skipped, SkippedEntry{Name: f.Name, Reason: "unsupported_extension"})
			continue
		}
		if int64(f.UncompressedSize64) > ig.Limits.MaxFileBytes {
			result.Skipped = append(result.Skipped, SkippedEntry{Name: f.Name, Reason: "file_too_large"})
			continue
		}
		caseBytesTotal += int64(f.UncompressedSize64)
		if caseBytesTotal > ig.Limits.MaxCaseBytes {
			result.Skipped = append(result.Skipped, SkippedEntry{Name: f.Name, Reason: "case_size_exceeded"})
			continue
		}

		rc, err := f.Open()
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedEntry{Name: f.Name, Reason: "unreadable"})
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedEntry{Name: f.Name, Reason: "unreadable"})
			continue
		}

		name := filepath.Base(f.Name)
		docID, err := ig.persist(caseID, name, ext, content)
		if err != nil {
			if pipelineerr.Is(err, pipelineerr.CodeDuplicate) {
				result.Skipped = append(result.Skipped, SkippedEntry{Name: f.Name, Reason: "duplicate_content"})
				continue
			}
			return nil, err
		}
		result.Accepted = append(result.Accepted, AcceptedEntry{DocID: docID, Filename: name})
	}
	return result, nil
}

// persist checks the content hash for a duplicate, then writes the blob
// and inserts the Document row and its OCR job inside a single
// transaction so a reader never observes a Document without a
// corresponding OCR job in flight, and a duplicate upload never leaves an
// orphaned blob behind.
func (ig *Ingester) persist(caseID uuid.UUID, filename, ext string, content []byte) (uuid.UUID, error) {
	docID := uuid.New()
	key := storage.DocumentKey(caseID, docID, ext)
	sum := sha256.Sum256(content)
	contentHash := hex.EncodeToString(sum[:])
	size := int64(len(content))

	now := ig.Now()
	err := ig.DB.Transaction(func(tx *gorm.DB) error {
		var existing store.Document
		err := tx.Where("case_id = ? AND content_hash = ?", caseID, contentHash).First(&existing).Error
		if err == nil {
			return pipelineerr.New(pipelineerr.CodeDuplicate, "document content already ingested for this case")
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("check duplicate: %w", err)
		}

		if _, _, err := ig.Blobs.WriteStream(key, bytes.NewReader(content)); err != nil {
			return fmt.Errorf("write blob: %w", err)
		}

		doc := store.Document{
			ID:               docID,
			CaseID:           caseID,
			StorageKey:       key,
			OriginalFilename: filename,
			ContentHash:      contentHash,
			SizeBytes:        size,
			Extension:        ext,
			Status:           store.DocumentStatusUploaded,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Create(&doc).Error; err != nil {
			return fmt.Errorf("create document: %w", err)
		}

		job := store.Job{
			ID:        uuid.New(),
			Kind:      store.JobKindOCR,
			CaseID:    caseID,
			Payload:   []byte(fmt.Sprintf(`{"document_id":"%s"}`, docID)),
			State:     store.JobQueued,
			NotBefore: now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&job).Error; err != nil {
			return fmt.Errorf("enqueue ocr job: %w", err)
		}

		var c store.Case
		if err := tx.Where("id = ?", caseID).First(&c).Error; err != nil {
			return fmt.Errorf("load case: %w", err)
		}
		if c.Status == store.CaseStatusCreated {
			if err := tx.Model(&c).Update("status", store.CaseStatusDocumentsUploaded).Error; err != nil {
				return fmt.Errorf("advance case status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return docID, nil
}
