package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/capiorg/backend-auth/internal/model"
)

// DocumentRepo defines the interface for document repository operations
type DocumentRepo interface {
	Create(ctx context.Context, doc *model.Document) error
}

type documentRepo struct {
	q Querier
}

// NewDocumentRepo creates a new DocumentRepo instance
func NewDocumentRepo(q Querier) DocumentRepo {
	return &documentRepo{q: q}
}

// Create registers a document reference and assigns its own identifier
func (r *documentRepo) Create(ctx context.Context, doc *model.Document) error {
	if doc.ID == uuid.Nil {
		id, err := newID()
		if err != nil {
			return err
		}
		doc.ID = id
	}

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO documents (uuid, document_id, filename, size_bytes, mime_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, doc.ID, doc.DocumentID, doc.Filename, doc.SizeBytes, doc.MimeType).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", translate("documents.create", err))
	}
	return nil
}
