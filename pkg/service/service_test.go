package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/fragments/internal/ratelimiter"
	contentmemory "github.com/marmos91/fragments/pkg/content/memory"
	"github.com/marmos91/fragments/pkg/fragment"
	metadatamemory "github.com/marmos91/fragments/pkg/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test doubles
// ============================================================================

// upperConverter "converts" by upper-casing and tagging the target type.
type upperConverter struct {
	calls int
	err   error
}

func (c *upperConverter) Convert(ctx context.Context, data []byte, from, to string) ([]byte, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []byte(to + ":" + strings.ToUpper(string(data))), nil
}

type opRecord struct {
	op     string
	failed bool
}

// recordingMetrics captures service metrics.
type recordingMetrics struct {
	mu          sync.Mutex
	ops         []opRecord
	inFlight    map[string]int
	bytes       map[string]int64
	rateLimited int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{inFlight: map[string]int{}, bytes: map[string]int64{}}
}

func (m *recordingMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, opRecord{operation, err != nil})
}

func (m *recordingMetrics) RecordOperationStart(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[operation]++
}

func (m *recordingMetrics) RecordOperationEnd(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[operation]--
}

func (m *recordingMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[direction] += bytes
}

func (m *recordingMetrics) RecordRateLimited(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited++
}

type fixture struct {
	svc       *Service
	content   *contentmemory.MemoryContentStore
	metadata  *metadatamemory.MemoryMetadataStore
	converter *upperConverter
	metrics   *recordingMetrics
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	meta := metadatamemory.NewMemoryMetadataStoreWithDefaults()
	data, err := contentmemory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = meta.Close()
		_ = data.Close()
	})

	fx := &fixture{
		content:  data,
		metadata: meta,
		metrics:  newRecordingMetrics(),
	}
	if opts.Converter == nil {
		fx.converter = &upperConverter{}
		opts.Converter = fx.converter
	}
	opts.Metrics = fx.metrics

	fx.svc = New(fragment.NewRepository(meta, data), opts)
	return fx
}

func mustCreate(t *testing.T, svc *Service, owner, typ, body string) *fragment.Fragment {
	t.Helper()
	f, err := svc.Create(context.Background(), owner, typ, []byte(body))
	require.NoError(t, err)
	return f
}

// ============================================================================
// Create
// ============================================================================

func TestCreate(t *testing.T) {
	fx := newFixture(t, Options{})

	f, err := fx.svc.Create(context.Background(), "u1", "text/plain; charset=utf-8", []byte("hello"))
	require.NoError(t, err)

	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "u1", f.OwnerID)
	assert.Equal(t, "text/plain; charset=utf-8", f.Type)
	assert.Equal(t, "text/plain", f.MimeType())
	assert.Equal(t, int64(5), f.Size)

	got, err := fx.svc.Info(context.Background(), "u1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, int64(5), got.Size)

	assert.Equal(t, int64(5), fx.metrics.bytes["write"])
}

func TestCreate_EmptyBody(t *testing.T) {
	fx := newFixture(t, Options{})

	f, err := fx.svc.Create(context.Background(), "u1", "application/json", []byte{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.Size)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		typ   string
		body  []byte
		want  error
	}{
		{"no owner", "", "text/plain", []byte("x"), ErrUnauthenticated},
		{"nil body", "u1", "text/plain", nil, ErrMissingBody},
		{"unparsable type", "u1", "not a type", []byte("x"), ErrUnsupportedType},
		{"empty type", "u1", "", []byte("x"), ErrUnsupportedType},
		{"unsupported type", "u1", "application/xml", []byte("<x/>"), ErrUnsupportedType},
		{"conversion-only type", "u1", "image/webp", []byte("x"), ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, Options{})

			f, err := fx.svc.Create(context.Background(), tt.owner, tt.typ, tt.body)
			assert.Nil(t, f)
			assert.ErrorIs(t, err, tt.want)

			// Nothing was written to either store.
			assert.Equal(t, 0, fx.content.Len())
			ids, err := fx.metadata.List(context.Background(), "u1")
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

// ============================================================================
// List / Info
// ============================================================================

func TestList(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{})

	empty, err := fx.svc.List(ctx, "u1", false)
	require.NoError(t, err)
	assert.NotNil(t, empty.IDs)
	assert.Equal(t, 0, empty.Len())

	a := mustCreate(t, fx.svc, "u1", "text/plain", "a")
	b := mustCreate(t, fx.svc, "u1", "text/markdown", "# b")
	mustCreate(t, fx.svc, "u2", "text/plain", "other")

	ids, err := fx.svc.List(ctx, "u1", false)
	require.NoError(t, err)
	assert.False(t, ids.Expanded)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids.IDs)
	assert.Nil(t, ids.Fragments)

	full, err := fx.svc.List(ctx, "u1", true)
	require.NoError(t, err)
	assert.True(t, full.Expanded)
	require.Equal(t, 2, full.Len())
	for _, f := range full.Fragments {
		assert.Equal(t, "u1", f.OwnerID)
	}
}

func TestList_ExpandedEmpty(t *testing.T) {
	fx := newFixture(t, Options{})

	l, err := fx.svc.List(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.NotNil(t, l.Fragments)
	assert.Empty(t, l.Fragments)
}

func TestInfo_NotFound(t *testing.T) {
	fx := newFixture(t, Options{})
	f := mustCreate(t, fx.svc, "u1", "text/plain", "x")

	_, err := fx.svc.Info(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, fragment.ErrNotFound)

	// Another owner cannot see it.
	_, err = fx.svc.Info(context.Background(), "u2", f.ID)
	assert.ErrorIs(t, err, fragment.ErrNotFound)
}

// ============================================================================
// Read
// ============================================================================

func TestRead_StoredType(t *testing.T) {
	fx := newFixture(t, Options{})
	f := mustCreate(t, fx.svc, "u1", "text/markdown; charset=utf-8", "# hi")

	p, err := fx.svc.Read(context.Background(), "u1", f.ID, "")
	require.NoError(t, err)

	assert.Equal(t, []byte("# hi"), p.Data)
	assert.Equal(t, "text/markdown; charset=utf-8", p.ContentType)
	assert.Equal(t, f.ID, p.Fragment.ID)
	assert.Equal(t, 0, fx.converter.calls)
	assert.Equal(t, int64(4), fx.metrics.bytes["read"])
}

func TestRead_SameBaseTypeNoConversion(t *testing.T) {
	fx := newFixture(t, Options{})
	f := mustCreate(t, fx.svc, "u1", "text/markdown", "# hi")

	p, err := fx.svc.Read(context.Background(), "u1", f.ID, "text/markdown; charset=utf-8")
	require.NoError(t, err)

	assert.Equal(t, []byte("# hi"), p.Data)
	assert.Equal(t, 0, fx.converter.calls)
}

func TestRead_Converted(t *testing.T) {
	fx := newFixture(t, Options{})
	f := mustCreate(t, fx.svc, "u1", "text/markdown", "# hi")

	p, err := fx.svc.Read(context.Background(), "u1", f.ID, "text/html")
	require.NoError(t, err)

	assert.Equal(t, "text/html", p.ContentType)
	assert.Equal(t, []byte("text/html:# HI"), p.Data)
	assert.Equal(t, 1, fx.converter.calls)
}

func TestRead_UnsupportedConversion(t *testing.T) {
	fx := newFixture(t, Options{})
	f := mustCreate(t, fx.svc, "u1", "text/plain", "hi")

	_, err := fx.svc.Read(context.Background(), "u1", f.ID, "text/html")
	assert.ErrorIs(t, err, ErrUnsupportedConversion)

	_, err = fx.svc.Read(context.Background(), "u1", f.ID, "garbage")
	assert.ErrorIs(t, err, ErrUnsupportedConversion)

	assert.Equal(t, 0, fx.converter.calls)
}

func TestRead_ConversionUnavailable(t *testing.T) {
	meta := metadatamemory.NewMemoryMetadataStoreWithDefaults()
	data, err := contentmemory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)
	svc := New(fragment.NewRepository(meta, data), Options{})

	f := mustCreate(t, svc, "u1", "image/png", "\x89PNG")

	_, err = svc.Read(context.Background(), "u1", f.ID, "image/jpeg")
	assert.ErrorIs(t, err, ErrConversionUnavailable)

	// Stored type still works.
	p, err := svc.Read(context.Background(), "u1", f.ID, "image/png")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), p.Data)
}

func TestRead_ConverterError(t *testing.T) {
	boom := errors.New("encoder crashed")
	fx := newFixture(t, Options{Converter: &upperConverter{err: boom}})
	f := mustCreate(t, fx.svc, "u1", "image/jpeg", "jpeg-bytes")

	_, err := fx.svc.Read(context.Background(), "u1", f.ID, "image/webp")
	assert.ErrorIs(t, err, boom)
}

func TestRead_NotFound(t *testing.T) {
	fx := newFixture(t, Options{})

	_, err := fx.svc.Read(context.Background(), "u1", "missing", "")
	assert.ErrorIs(t, err, fragment.ErrNotFound)
}

// TestRead_MissingPayload reports metadata without bytes as not found.
func TestRead_MissingPayload(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{})
	f := mustCreate(t, fx.svc, "u1", "text/plain", "x")

	require.NoError(t, fx.content.Delete(ctx, "u1", f.ID))

	_, err := fx.svc.Read(ctx, "u1", f.ID, "")
	var nf *fragment.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, f.ID, nf.ID)
}

func TestReadByExtension(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{})
	f := mustCreate(t, fx.svc, "u1", "text/markdown", "# md")

	p, err := fx.svc.ReadByExtension(ctx, "u1", f.ID+".md")
	require.NoError(t, err)
	assert.Equal(t, []byte("# md"), p.Data)

	p, err = fx.svc.ReadByExtension(ctx, "u1", f.ID+".html")
	require.NoError(t, err)
	assert.Equal(t, "text/html", p.ContentType)

	p, err = fx.svc.ReadByExtension(ctx, "u1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("# md"), p.Data)

	_, err = fx.svc.ReadByExtension(ctx, "u1", f.ID+".png")
	assert.ErrorIs(t, err, ErrUnsupportedConversion)

	_, err = fx.svc.ReadByExtension(ctx, "u1", f.ID+".gif")
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestSplitExtension(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		target  string
		wantErr bool
	}{
		{"abc", "abc", "", false},
		{"abc.txt", "abc", "text/plain", false},
		{"abc.JPG", "abc", "image/jpeg", false},
		{"abc.webp", "abc", "image/webp", false},
		{".txt", "", "", true},
		{"abc.exe", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, target, err := splitExtension(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.target, target)
		})
	}
}

// ============================================================================
// Update / Delete
// ============================================================================

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{})
	f := mustCreate(t, fx.svc, "u1", "text/plain", "short")

	updated, err := fx.svc.Update(ctx, "u1", f.ID, "text/plain; charset=utf-8", []byte("much longer body"))
	require.NoError(t, err)
	assert.Equal(t, int64(16), updated.Size)
	assert.Equal(t, "text/plain", updated.Type, "type is immutable")
	assert.GreaterOrEqual(t, updated.Updated, f.Updated)
	assert.Equal(t, f.Created, updated.Created)

	p, err := fx.svc.Read(ctx, "u1", f.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("much longer body"), p.Data)
}

func TestUpdate_TypeMismatch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{})
	f := mustCreate(t, fx.svc, "u1", "text/plain", "x")

	_, err := fx.svc.Update(ctx, "u1", f.ID, "text/markdown", []byte("# x"))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	p, err := fx.svc.Read(ctx, "u1", f.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), p.Data)
}

func TestUpdate_Rejections(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{})
	f := mustCreate(t, fx.svc, "u1", "text/plain", "x")

	_, err := fx.svc.Update(ctx, "u1", "missing", "text/plain", []byte("y"))
	assert.ErrorIs(t, err, fragment.ErrNotFound)

	_, err = fx.svc.Update(ctx, "u1", f.ID, "text/plain", nil)
	assert.ErrorIs(t, err, ErrMissingBody)

	_, err = fx.svc.Update(ctx, "u1", f.ID, "application/xml", []byte("y"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{})
	f := mustCreate(t, fx.svc, "u1", "text/plain", "bye")

	require.NoError(t, fx.svc.Delete(ctx, "u1", f.ID))

	_, err := fx.svc.Info(ctx, "u1", f.ID)
	assert.ErrorIs(t, err, fragment.ErrNotFound)
	assert.Equal(t, 0, fx.content.Len())
}

func TestDelete_NotFound(t *testing.T) {
	fx := newFixture(t, Options{})

	err := fx.svc.Delete(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, fragment.ErrNotFound)
}

// ============================================================================
// Cross-cutting
// ============================================================================

func TestUnauthenticated(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{})

	_, err := fx.svc.List(ctx, "", false)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = fx.svc.Info(ctx, "", "x")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = fx.svc.Read(ctx, "", "x", "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = fx.svc.ReadByExtension(ctx, "", "x.txt")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = fx.svc.Update(ctx, "", "x", "text/plain", []byte("y"))
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, fx.svc.Delete(ctx, "", "x"), ErrUnauthenticated)
}

func TestUnauthenticated_BlankOwner(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{})

	for _, owner := range []string{" ", "   ", "\t\n"} {
		_, err := fx.svc.Create(ctx, owner, "text/plain", []byte("x"))
		assert.ErrorIs(t, err, ErrUnauthenticated, "owner %q", owner)
		_, err = fx.svc.List(ctx, owner, false)
		assert.ErrorIs(t, err, ErrUnauthenticated, "owner %q", owner)
	}
}

func TestRateLimited(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{Limiter: ratelimiter.New(1, 2)})

	_, err := fx.svc.List(ctx, "u1", false)
	require.NoError(t, err)
	_, err = fx.svc.List(ctx, "u1", false)
	require.NoError(t, err)

	_, err = fx.svc.List(ctx, "u1", false)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, fx.metrics.rateLimited)

	// Another owner has its own allowance.
	_, err = fx.svc.List(ctx, "u2", false)
	assert.NoError(t, err)
}

func TestRateLimited_WaitForToken(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{Limiter: ratelimiter.New(50, 1), WaitForToken: true})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := fx.svc.List(ctx, "u1", false)
		require.NoError(t, err)
	}

	// Two refills at 50/s.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, fx.metrics.rateLimited)
}

func TestRateLimited_WaitExceedsDeadline(t *testing.T) {
	fx := newFixture(t, Options{Limiter: ratelimiter.New(1, 1), WaitForToken: true})

	_, err := fx.svc.List(context.Background(), "u1", false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = fx.svc.List(ctx, "u1", false)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, fx.metrics.rateLimited)
}

func TestRateLimited_WaitCancelled(t *testing.T) {
	fx := newFixture(t, Options{Limiter: ratelimiter.New(1, 1), WaitForToken: true})

	_, err := fx.svc.List(context.Background(), "u1", false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = fx.svc.List(ctx, "u1", false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fx.metrics.rateLimited)
}

func TestMetrics_OperationsTracked(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Options{})

	f := mustCreate(t, fx.svc, "u1", "text/plain", "x")
	_, _ = fx.svc.Info(ctx, "u1", "missing")
	require.NoError(t, fx.svc.Delete(ctx, "u1", f.ID))

	assert.Equal(t, []opRecord{
		{"create", false},
		{"info", true},
		{"delete", false},
	}, fx.metrics.ops)

	for op, n := range fx.metrics.inFlight {
		assert.Equal(t, 0, n, "in-flight gauge for %s returns to zero", op)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	fx := newFixture(t, Options{})
	require.NoError(t, fx.metadata.Close())

	_, err := fx.svc.Create(context.Background(), "u1", "text/plain", []byte("x"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, fragment.ErrValidation))
}
