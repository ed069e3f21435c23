// Package onboarding registers an operator and uploads its media and
// verification documents.
//
// The operator row is created first. Uploads then run concurrently and each
// successful upload stores its own reference (a URL on the operator row or a
// gallery/document row). A failed upload becomes a warning on the result and
// never touches another upload's reference. Nothing is rolled back, except
// that an object whose reference could not be written is deleted again.
package onboarding

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/metrics"
	"github.com/waypoint-tourism/directory/internal/notify"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

// ObjectStore is the storage API onboarding needs.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, opts supabase.UploadOptions, accessToken string) (string, error)
	GetPublicURL(bucket, path string) string
	Remove(ctx context.Context, bucket string, paths []string, accessToken string) error
	CreateSignedURL(ctx context.Context, bucket, path string, expiresIn int, accessToken string) (string, error)
}

// File is one uploaded file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Document is a verification document with its type.
type Document struct {
	File
	Type string
}

// Request is one onboarding submission.
type Request struct {
	Operator  domain.OperatorCreate
	Logo      *File
	Cover     *File
	Gallery   []File
	Documents []Document
}

// Warning describes one file that did not make it.
type Warning struct {
	Purpose Purpose `json:"purpose"`
	File    string  `json:"file"`
	Message string  `json:"message"`
}

// Result is what onboarding produced.
type Result struct {
	Operator  *domain.Operator          `json:"operator"`
	LogoURL   string                    `json:"logo_url,omitempty"`
	CoverURL  string                    `json:"cover_url,omitempty"`
	Gallery   []domain.OperatorMedia    `json:"gallery"`
	Documents []domain.OperatorDocument `json:"documents"`
	Warnings  []Warning                 `json:"warnings"`
}

// Service runs onboarding.
type Service struct {
	repo     database.OperatorRepository
	storage  ObjectStore
	cfg      Config
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewService creates an onboarding service. Zero config fields take defaults.
func NewService(repo database.OperatorRepository, storage ObjectStore, cfg Config, notifier notify.Notifier, m *metrics.Metrics, logger *logging.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		storage:  storage,
		cfg:      cfg.withDefaults(),
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

type job struct {
	purpose Purpose
	file    File
	docType string
}

// Onboard validates req, creates the operator owned by ownerID and uploads
// every file. Invalid input fails before anything is written.
func (s *Service) Onboard(ctx context.Context, ownerID string, req Request) (*Result, error) {
	jobs, err := s.prepare(ownerID, &req)
	if err != nil {
		return nil, err
	}

	op, err := s.repo.CreateOperator(ctx, req.Operator)
	if err != nil {
		s.notifier.Notify(ctx, notify.Error("Onboarding failed", database.BackendMessage(err)))
		return nil, err
	}

	log := s.logger.WithContext(ctx).WithFields(logrus.Fields{"operator_id": op.ID, "files": len(jobs)})
	log.Info("operator created; uploading files")

	res := &Result{
		Operator:  op,
		Gallery:   []domain.OperatorMedia{},
		Documents: []domain.OperatorDocument{},
		Warnings:  []Warning{},
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := s.run(gctx, op.ID, j, res, &mu); err != nil {
				mu.Lock()
				res.Warnings = append(res.Warnings, Warning{Purpose: j.purpose, File: j.file.Name, Message: database.BackendMessage(err)})
				mu.Unlock()
				log.WithError(err).WithField("file", j.file.Name).Warn("upload failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := len(res.Warnings); n > 0 {
		s.notifier.Notify(ctx, notify.Warning("Application submitted with problems",
			fmt.Sprintf("%d of %d files could not be uploaded", n, len(jobs))))
	} else {
		s.notifier.Notify(ctx, notify.Success("Application submitted", "Your operator profile is pending review."))
	}
	return res, nil
}

func (s *Service) prepare(ownerID string, req *Request) ([]job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner is required", database.ErrInvalidInput)
	}
	op := &req.Operator
	op.OwnerID = ownerID
	op.Status = domain.OperatorPending
	op.BusinessName = strings.TrimSpace(op.BusinessName)
	op.ContactEmail = strings.TrimSpace(op.ContactEmail)
	if op.BusinessName == "" {
		return nil, fmt.Errorf("%w: business name is required", database.ErrInvalidInput)
	}
	if op.ContactEmail == "" || !strings.Contains(op.ContactEmail, "@") {
		return nil, fmt.Errorf("%w: a valid contact email is required", database.ErrInvalidInput)
	}

	var jobs []job
	if req.Logo != nil {
		jobs = append(jobs, job{purpose: PurposeLogo, file: *req.Logo})
	}
	if req.Cover != nil {
		jobs = append(jobs, job{purpose: PurposeCover, file: *req.Cover})
	}
	for _, f := range req.Gallery {
		jobs = append(jobs, job{purpose: PurposeGallery, file: f})
	}
	for _, d := range req.Documents {
		docType := d.Type
		if docType == "" {
			docType = domain.DocumentOther
		}
		jobs = append(jobs, job{purpose: PurposeDocument, file: d.File, docType: docType})
	}

	for i := range jobs {
		if err := s.validate(&jobs[i]); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func (s *Service) validate(j *job) error {
	f := &j.file
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s %q is empty", database.ErrInvalidInput, j.purpose, f.Name)
	}
	if int64(len(f.Data)) > s.cfg.MaxFileSize {
		return fmt.Errorf("%w: %s %q is larger than %d bytes", database.ErrInvalidInput, j.purpose, f.Name, s.cfg.MaxFileSize)
	}

	ct := f.ContentType
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if ct == "" || ct == "application/octet-stream" {
		ct, _, _ = mime.ParseMediaType(http.DetectContentType(f.Data))
	}
	if !domain.Contains(s.cfg.AllowedTypes[j.purpose], ct) {
		return fmt.Errorf("%w: %s %q has unsupported type %s", database.ErrInvalidInput, j.purpose, f.Name, ct)
	}
	f.ContentType = ct
	return nil
}

func (s *Service) run(ctx context.Context, operatorID string, j job, res *Result, mu *sync.Mutex) error {
	bucket := s.cfg.Buckets.For(j.purpose)
	objectPath := operatorID + "/" + uuid.NewString() + extension(j.file)

	_, err := s.storage.Upload(ctx, bucket, objectPath, j.file.Data,
		supabase.UploadOptions{ContentType: j.file.ContentType, CacheControl: "3600"},
		database.AccessToken(ctx))
	s.metrics.RecordUpload(bucket, int64(len(j.file.Data)), err == nil)
	if err != nil {
		return err
	}

	if err := s.reference(ctx, operatorID, bucket, objectPath, j, res, mu); err != nil {
		// The object is unreachable without its row.
		if rmErr := s.storage.Remove(ctx, bucket, []string{objectPath}, database.AccessToken(ctx)); rmErr != nil {
			s.logger.WithContext(ctx).WithError(rmErr).WithField("object", bucket+"/"+objectPath).Warn("orphaned upload not removed")
		}
		return err
	}
	return nil
}

// reference records an uploaded object on the operator.
func (s *Service) reference(ctx context.Context, operatorID, bucket, objectPath string, j job, res *Result, mu *sync.Mutex) error {
	switch j.purpose {
	case PurposeLogo, PurposeCover:
		column := database.OperatorLogoColumn
		if j.purpose == PurposeCover {
			column = database.OperatorCoverColumn
		}
		publicURL := s.storage.GetPublicURL(bucket, objectPath)
		if err := s.repo.SetOperatorAsset(ctx, operatorID, column, publicURL); err != nil {
			return err
		}
		mu.Lock()
		if j.purpose == PurposeLogo {
			res.LogoURL = publicURL
		} else {
			res.CoverURL = publicURL
		}
		mu.Unlock()

	case PurposeGallery:
		media := domain.OperatorMedia{
			OperatorID:  operatorID,
			StoragePath: objectPath,
			PublicURL:   s.storage.GetPublicURL(bucket, objectPath),
			ContentType: j.file.ContentType,
		}
		if err := s.repo.AddGalleryMedia(ctx, media); err != nil {
			return err
		}
		mu.Lock()
		res.Gallery = append(res.Gallery, media)
		mu.Unlock()

	case PurposeDocument:
		doc := domain.OperatorDocument{
			OperatorID:   operatorID,
			DocumentType: j.docType,
			StoragePath:  objectPath,
			ContentType:  j.file.ContentType,
		}
		if err := s.repo.AddVerificationDocument(ctx, doc); err != nil {
			return err
		}
		mu.Lock()
		res.Documents = append(res.Documents, doc)
		mu.Unlock()
	}
	return nil
}

func extension(f File) string {
	if ext := strings.ToLower(path.Ext(f.Name)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if exts, err := mime.ExtensionsByType(f.ContentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
