package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf-dev/openshelf/internal/core"
	"github.com/openshelf-dev/openshelf/internal/core/mocks"
	"github.com/openshelf-dev/openshelf/internal/models"
)

func TestUploadAndCreate(t *testing.T) {
	db := mocks.NewMemoryDbClient()
	obj := mocks.NewMemoryObjectClient()
	svc := NewDocumentService(db, obj, 15*time.Minute)

	doc, err := svc.UploadAndCreate(context.Background(), "My Book", "my book.pdf", "application/pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "uploaded", doc.Status)
	assert.Equal(t, doc.ID+"/source/my_book.pdf", doc.StoragePath)
	assert.Contains(t, obj.Objects, doc.StoragePath)

	stored, err := db.GetDocumentByID(context.Background(), doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "My Book", stored.Title)
}

func TestPagesSignsBothResolutions(t *testing.T) {
	db := mocks.NewMemoryDbClient()
	obj := mocks.NewMemoryObjectClient()
	svc := NewDocumentService(db, obj, 15*time.Minute)

	require.NoError(t, db.CreateDocument(context.Background(), &models.Document{
		ID: docID, FileName: "book.pdf", ContentType: "application/pdf", Status: "ready",
	}))
	db.Pages[docID] = []models.PageImage{
		{DocumentID: docID, PageNumber: 1, Width: 612, Height: 792,
			ThumbnailPath: docID + "/pages/thumbnail/1.jpg", MediumPath: docID + "/pages/medium/1.jpg"},
		{DocumentID: docID, PageNumber: 2, Width: 612, Height: 792,
			ThumbnailPath: docID + "/pages/thumbnail/2.jpg", MediumPath: docID + "/pages/medium/2.jpg"},
	}

	pages, err := svc.Pages(context.Background(), docID)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Contains(t, pages[0].ThumbnailURL, "thumbnail/1.jpg")
	assert.Contains(t, pages[0].ThumbnailURL, "mode=download")
	assert.Contains(t, pages[0].MediumURL, "medium/1.jpg")
	assert.Equal(t, 612, pages[0].Width)
}

func TestPagesUnknownDocument(t *testing.T) {
	db := mocks.NewMemoryDbClient()
	obj := mocks.NewMemoryObjectClient()
	svc := NewDocumentService(db, obj, time.Minute)

	_, err := svc.Pages(context.Background(), "d00d0000-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)
}
