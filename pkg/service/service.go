// Package service exposes the fragment operations an ingress layer calls:
// create, list, info, read (with optional conversion), update and delete.
//
// It owns the cross-cutting concerns around the fragment model: owner checks,
// content-type screening before any entity is built, per-owner rate limiting,
// logging and metrics. Transport mapping (status codes, headers, envelopes)
// is left to the caller.
package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/internal/ratelimiter"
	"github.com/marmos91/fragments/pkg/fragment"
	"github.com/marmos91/fragments/pkg/metrics"
)

// Converter transcodes a payload between two MIME types. The service only
// calls it for conversions the fragment's format table allows.
type Converter interface {
	Convert(ctx context.Context, data []byte, from, to string) ([]byte, error)
}

// Options configures optional collaborators. The zero value is valid.
type Options struct {
	// Converter performs cross-type reads. Nil disables them.
	Converter Converter

	// Limiter throttles requests per owner. Nil disables rate limiting.
	Limiter *ratelimiter.RateLimiter

	// WaitForToken makes an owner over its limit wait for the next token
	// instead of failing with ErrRateLimited. The wait is bounded by the
	// request context.
	WaitForToken bool

	// Metrics receives operation metrics. Nil uses a no-op implementation.
	Metrics metrics.FragmentMetrics
}

// Service implements the fragment operations over a Repository.
//
// Thread safety:
// Safe for concurrent use; all state lives in the repository's stores.
type Service struct {
	repo      *fragment.Repository
	converter Converter
	limiter   *ratelimiter.RateLimiter
	wait      bool
	metrics   metrics.FragmentMetrics
}

// New creates a Service over repo.
func New(repo *fragment.Repository, opts Options) *Service {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoopFragmentMetrics()
	}

	return &Service{
		repo:      repo,
		converter: opts.Converter,
		limiter:   opts.Limiter,
		wait:      opts.WaitForToken,
		metrics:   m,
	}
}

// Listing is the result of List. Exactly one of IDs or Fragments is set,
// according to Expanded; the set one is never nil.
type Listing struct {
	Expanded  bool                 `json:"-"`
	IDs       []string             `json:"ids,omitempty"`
	Fragments []*fragment.Fragment `json:"fragments,omitempty"`
}

// Len returns the number of fragments in the listing.
func (l *Listing) Len() int {
	if l.Expanded {
		return len(l.Fragments)
	}
	return len(l.IDs)
}

// Payload is the result of a read.
type Payload struct {
	// Fragment is the metadata of the fragment read.
	Fragment *fragment.Fragment

	// ContentType is the stored type when no conversion happened, otherwise
	// the conversion target.
	ContentType string

	// Data is the (possibly converted) payload.
	Data []byte
}

// ============================================================================
// Operations
// ============================================================================

// Create stores a new fragment of contentType with body as its payload.
//
// The content type is screened before any entity is built, so malformed or
// unsupported uploads never reach a store.
func (s *Service) Create(ctx context.Context, ownerID, contentType string, body []byte) (f *fragment.Fragment, err error) {
	const op = "create"
	defer s.track(op)(&err)

	logger.Info("Handling create fragment request (type=%s, %d bytes)", contentType, len(body))

	if err := s.admit(ctx, op, ownerID); err != nil {
		return nil, err
	}
	if body == nil {
		logger.Warn("Create fragment rejected: missing body")
		return nil, ErrMissingBody
	}
	if err := checkContentType(contentType); err != nil {
		logger.Warn("Create fragment rejected: %v", err)
		return nil, err
	}

	f, err = s.repo.New(fragment.Params{
		OwnerID: ownerID,
		Type:    contentType,
		Size:    int64(len(body)),
	})
	if err != nil {
		logger.Warn("Create fragment rejected: %v", err)
		return nil, err
	}

	if err := f.Save(ctx); err != nil {
		logger.Error("Failed to save fragment %s: %v", f.ID, err)
		return nil, err
	}
	if err := f.SetData(ctx, body); err != nil {
		logger.Error("Failed to store data for fragment %s: %v", f.ID, err)
		return nil, err
	}

	s.metrics.RecordBytesTransferred("write", int64(len(body)))
	logger.Debug("Fragment created: %s (%d bytes)", f.ID, f.Size)

	return f, nil
}

// List returns the owner's fragment ids, or full fragments when expand is set.
func (s *Service) List(ctx context.Context, ownerID string, expand bool) (l *Listing, err error) {
	const op = "list"
	defer s.track(op)(&err)

	logger.Info("Handling list fragments request (expand=%v)", expand)

	if err := s.admit(ctx, op, ownerID); err != nil {
		return nil, err
	}

	if !expand {
		ids, err := s.repo.ByUser(ctx, ownerID)
		if err != nil {
			logger.Error("Failed to list fragments: %v", err)
			return nil, err
		}
		logger.Debug("Found %d fragments", len(ids))
		return &Listing{IDs: ids}, nil
	}

	frags, err := s.repo.ByUserExpanded(ctx, ownerID)
	if err != nil {
		logger.Error("Failed to list fragments: %v", err)
		return nil, err
	}
	logger.Debug("Found %d fragments", len(frags))
	return &Listing{Expanded: true, Fragments: frags}, nil
}

// Info returns the metadata of a fragment.
func (s *Service) Info(ctx context.Context, ownerID, id string) (f *fragment.Fragment, err error) {
	const op = "info"
	defer s.track(op)(&err)

	logger.Info("Handling fragment info request for %s", id)

	if err := s.admit(ctx, op, ownerID); err != nil {
		return nil, err
	}

	f, err = s.lookup(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	logger.Debug("Fragment info retrieved: %s", id)
	return f, nil
}

// Read returns a fragment's payload, converted to target when target is set
// and differs from the stored base type.
//
// Returns:
//   - *fragment.NotFoundError if the metadata or the payload is missing
//   - ErrUnsupportedConversion if target is not one of the fragment's formats
//   - ErrConversionUnavailable if a conversion is needed but no Converter is set
func (s *Service) Read(ctx context.Context, ownerID, id, target string) (p *Payload, err error) {
	const op = "read"
	defer s.track(op)(&err)

	logger.Info("Handling read fragment request for %s (target=%q)", id, target)

	if err := s.admit(ctx, op, ownerID); err != nil {
		return nil, err
	}

	return s.read(ctx, ownerID, id, target)
}

// ReadByExtension reads "id.ext", converting to the type the extension names.
// A name without an extension reads the stored type.
func (s *Service) ReadByExtension(ctx context.Context, ownerID, name string) (p *Payload, err error) {
	const op = "read"
	defer s.track(op)(&err)

	logger.Info("Handling read fragment request for %s", name)

	if err := s.admit(ctx, op, ownerID); err != nil {
		return nil, err
	}

	id, target, err := splitExtension(name)
	if err != nil {
		logger.Warn("Read fragment rejected: %v", err)
		return nil, err
	}

	return s.read(ctx, ownerID, id, target)
}

// Update replaces a fragment's payload. contentType's base type must match
// the fragment's.
func (s *Service) Update(ctx context.Context, ownerID, id, contentType string, body []byte) (f *fragment.Fragment, err error) {
	const op = "update"
	defer s.track(op)(&err)

	logger.Info("Handling update fragment request for %s (type=%s, %d bytes)", id, contentType, len(body))

	if err := s.admit(ctx, op, ownerID); err != nil {
		return nil, err
	}
	if body == nil {
		logger.Warn("Update fragment rejected: missing body")
		return nil, ErrMissingBody
	}
	if err := checkContentType(contentType); err != nil {
		logger.Warn("Update fragment rejected: %v", err)
		return nil, err
	}

	f, err = s.lookup(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	base, _ := fragment.MimeTypeOf(contentType)
	if base != f.MimeType() {
		logger.Warn("Update fragment %s rejected: type %s does not match %s", id, base, f.MimeType())
		return nil, fmt.Errorf("%w: %s is %s", ErrTypeMismatch, base, f.MimeType())
	}

	if err := f.SetData(ctx, body); err != nil {
		logger.Error("Failed to store data for fragment %s: %v", id, err)
		return nil, err
	}

	s.metrics.RecordBytesTransferred("write", int64(len(body)))
	logger.Debug("Fragment updated: %s (%d bytes)", id, f.Size)

	return f, nil
}

// Delete removes a fragment after confirming it exists.
func (s *Service) Delete(ctx context.Context, ownerID, id string) (err error) {
	const op = "delete"
	defer s.track(op)(&err)

	logger.Info("Handling delete fragment request for %s", id)

	if err := s.admit(ctx, op, ownerID); err != nil {
		return err
	}

	if _, err := s.lookup(ctx, ownerID, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		logger.Error("Failed to delete fragment %s: %v", id, err)
		return err
	}

	logger.Debug("Fragment deleted: %s", id)
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

// admit checks the owner and the rate limit.
//
// A blank owner is unauthenticated. Over-limit owners are rejected, or
// made to wait when the service was built with WaitForToken.
func (s *Service) admit(ctx context.Context, op, ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		logger.Warn("Unauthenticated %s request", op)
		return ErrUnauthenticated
	}
	if s.limiter == nil {
		return nil
	}

	if s.wait {
		err := s.limiter.Wait(ctx, ownerID)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	} else if s.limiter.Allow(ownerID) {
		return nil
	}

	s.metrics.RecordRateLimited(op)
	logger.Warn("Rate limit exceeded for %s request", op)
	logger.Debug("Owner %s has %.2f tokens left", ownerID, s.limiter.Tokens(ownerID))
	return ErrRateLimited
}

// track records in-flight and completion metrics for one operation.
//
//	defer s.track(op)(&err)
func (s *Service) track(op string) func(*error) {
	start := time.Now()
	s.metrics.RecordOperationStart(op)

	return func(errp *error) {
		s.metrics.RecordOperationEnd(op)
		s.metrics.RecordOperation(op, time.Since(start), *errp)
	}
}

// lookup loads a fragment, logging not-found at Warn and failures at Error.
func (s *Service) lookup(ctx context.Context, ownerID, id string) (*fragment.Fragment, error) {
	f, err := s.repo.ByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, fragment.ErrNotFound) {
			logger.Warn("Fragment not found: %s", id)
		} else {
			logger.Error("Failed to get fragment %s: %v", id, err)
		}
		return nil, err
	}
	return f, nil
}

func (s *Service) read(ctx context.Context, ownerID, id, target string) (*Payload, error) {
	f, err := s.lookup(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	targetBase := f.MimeType()
	if target != "" {
		if !f.CanConvertTo(target) {
			logger.Warn("Fragment %s (%s) cannot be converted to %s", id, f.MimeType(), target)
			return nil, fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, f.MimeType(), target)
		}
		targetBase, _ = fragment.MimeTypeOf(target)
	}

	data, ok, err := f.Data(ctx)
	if err != nil {
		logger.Error("Failed to read data for fragment %s: %v", id, err)
		return nil, err
	}
	if !ok {
		logger.Warn("Fragment data not found: %s", id)
		return nil, &fragment.NotFoundError{OwnerID: ownerID, ID: id}
	}

	payload := &Payload{Fragment: f, ContentType: f.Type, Data: data}

	if targetBase != f.MimeType() {
		if s.converter == nil {
			logger.Warn("No converter configured for %s to %s", f.MimeType(), targetBase)
			return nil, fmt.Errorf("%w: %s to %s", ErrConversionUnavailable, f.MimeType(), targetBase)
		}

		converted, err := s.converter.Convert(ctx, data, f.MimeType(), targetBase)
		if err != nil {
			logger.Error("Failed to convert fragment %s to %s: %v", id, targetBase, err)
			return nil, fmt.Errorf("convert fragment %s to %s: %w", id, targetBase, err)
		}
		payload.ContentType = targetBase
		payload.Data = converted
	}

	s.metrics.RecordBytesTransferred("read", int64(len(payload.Data)))
	logger.Debug("Fragment retrieved: %s (%s, %d bytes)", id, payload.ContentType, len(payload.Data))

	return payload, nil
}

// checkContentType screens a content type before any entity is built.
func checkContentType(contentType string) error {
	if _, err := fragment.MimeTypeOf(contentType); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	if !fragment.IsSupportedType(contentType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return nil
}

// splitExtension splits "id.ext" into the id and the extension's MIME type.
// A name without an extension yields an empty target.
func splitExtension(name string) (id, target string, err error) {
	ext := path.Ext(name)
	if ext == "" {
		return name, "", nil
	}

	id = strings.TrimSuffix(name, ext)
	if id == "" {
		return "", "", fmt.Errorf("%w: missing id in %q", ErrUnsupportedConversion, name)
	}

	target, ok := fragment.ExtensionType(ext)
	if !ok {
		return "", "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedConversion, ext)
	}
	return id, target, nil
}
