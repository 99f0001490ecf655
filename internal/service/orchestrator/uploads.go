package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/storage"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

// ResultUploadURL presigns an upload for the lab's result report. The returned ObjectURL
// is what UPLOAD_RESULTS carries as resultFileUrl.
func (s *Service) ResultUploadURL(ctx context.Context, actor model.Actor, labOrderID uuid.UUID) (*storage.Upload, error) {
	if actor.Role != model.RoleLabStaff && actor.Role != model.RoleAdmin {
		return nil, apperrors.NewForbidden(fmt.Sprintf("%s cannot upload lab results", actor.Role))
	}
	o, err := s.GetLabOrder(ctx, actor, labOrderID)
	if err != nil {
		return nil, err
	}
	switch o.Status {
	case model.LabOrderSampleReceived, model.LabOrderProcessing, model.LabOrderResultsUploaded:
	default:
		return nil, apperrors.NewPreconditionMissing(fmt.Sprintf("results cannot be uploaded while the order is %s", o.Status))
	}
	return s.presign(ctx, storage.ResultKey(o.ID), "application/pdf")
}

// IssuePhotoUploadURL presigns an upload for a damage or issue photo on a pharmacy order.
func (s *Service) IssuePhotoUploadURL(ctx context.Context, actor model.Actor, pharmacyOrderID uuid.UUID) (*storage.Upload, error) {
	o, err := s.GetPharmacyOrder(ctx, actor, pharmacyOrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == model.PharmacyCancelled || o.Status == model.PharmacyReturned {
		return nil, apperrors.NewPreconditionMissing(fmt.Sprintf("order is %s", o.Status))
	}
	return s.presign(ctx, storage.IssuePhotoKey(o.ID), "image/jpeg")
}

func (s *Service) presign(ctx context.Context, key, contentType string) (*storage.Upload, error) {
	if s.uploads == nil {
		return nil, apperrors.NewInternal(fmt.Errorf("object storage is not configured"))
	}
	up, err := s.uploads.PresignUpload(ctx, key, contentType)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return up, nil
}
