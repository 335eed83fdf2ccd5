package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openshelf-dev/openshelf/internal/core"
	"github.com/openshelf-dev/openshelf/internal/models"
)

type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	urlTTL  time.Duration
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, urlTTL time.Duration) *DocumentService {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &DocumentService{db: db, storage: storage, urlTTL: urlTTL}
}

// UploadAndCreate stores the source bytes and creates the document row.
func (s *DocumentService) UploadAndCreate(ctx context.Context, title, filename, contentType string, data []byte) (*models.Document, error) {
	docID := uuid.NewString()
	key := sourceKey(docID, filename)

	if _, err := s.storage.Upload(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("upload source: %w", err)
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:          docID,
		Title:       title,
		FileName:    filename,
		StoragePath: key,
		ContentType: contentType,
		Status:      "uploaded",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

func (s *DocumentService) List(ctx context.Context) ([]models.Document, error) {
	return s.db.ListDocuments(ctx)
}

// PageView is one page image row with browsable URLs attached.
type PageView struct {
	PageNumber   int    `json:"page_number"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	ThumbnailURL string `json:"thumbnail_url"`
	MediumURL    string `json:"medium_url"`
}

// Pages lists the rendered pages of a document with signed download URLs.
func (s *DocumentService) Pages(ctx context.Context, documentID string) ([]PageView, error) {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, core.ErrDocumentNotFound
	}

	images, err := s.db.ListPageImages(ctx, documentID)
	if err != nil {
		return nil, err
	}

	out := make([]PageView, 0, len(images))
	for _, img := range images {
		thumbURL, err := s.storage.SignedURL(ctx, img.ThumbnailPath, s.urlTTL, true)
		if err != nil {
			return nil, fmt.Errorf("sign thumbnail url for page %d: %w", img.PageNumber, err)
		}
		mediumURL, err := s.storage.SignedURL(ctx, img.MediumPath, s.urlTTL, true)
		if err != nil {
			return nil, fmt.Errorf("sign medium url for page %d: %w", img.PageNumber, err)
		}
		out = append(out, PageView{
			PageNumber:   img.PageNumber,
			Width:        img.Width,
			Height:       img.Height,
			ThumbnailURL: thumbURL,
			MediumURL:    mediumURL,
		})
	}
	return out, nil
}

// sourceKey creates a consistent object key layout for uploaded sources.
func sourceKey(docID, filename string) string {
	filename = strings.TrimSpace(path.Base(filename))
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join(docID, "source", filename)
}
