package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperdesk/be-doc-approvals/internal/convert"
	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
	"github.com/paperdesk/be-doc-approvals/internal/platform/logger"
	"github.com/paperdesk/be-doc-approvals/internal/repository"
	"github.com/paperdesk/be-doc-approvals/internal/storage"
)

type documentFixture struct {
	svc      *DocumentService
	repo     *memRepo
	store    *fakeArtifactStore
	conv     *fakeConverter
	audit    *fakeAudit
	notifier *fakeNotifier
}

func newDocumentFixture(t *testing.T) *documentFixture {
	t.Helper()
	f := &documentFixture{
		repo:     newMemRepo(),
		store:    newFakeArtifactStore(),
		conv:     &fakeConverter{out: []byte("%PDF-converted")},
		audit:    &fakeAudit{},
		notifier: &fakeNotifier{},
	}
	roles := &fakeRoles{roster: map[string][]*repository.RoleAssignment{
		"FINANCE/DEPARTMENT_HEAD": {
			{PrincipalID: "user-head", PrincipalName: "Head"},
		},
	}}
	resolver := NewChainResolver(&fakeRules{}, roles, logger.Nop())
	f.svc = NewDocumentService(f.repo, resolver, f.store, f.conv, f.audit, f.notifier, logger.Nop())
	return f
}

func submitRequest(fileName string, data []byte) *SubmitDocumentRequest {
	return &SubmitDocumentRequest{
		Title:       "Vendor contract",
		DocType:     "contract",
		Department:  "FINANCE",
		FileName:    fileName,
		FileBytes:   data,
		SubmittedBy: "user-submitter",
	}
}

func TestSubmitCreatesDocumentWithChain(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Submit(ctx, submitRequest("contract.docx", []byte("office-bytes")))
	require.NoError(t, err)
	assert.Equal(t, repository.DocumentPending, doc.Status)
	assert.Equal(t, "docx", doc.DeclaredFormat)
	assert.Nil(t, doc.PreviousDocumentID)

	levels, err := f.repo.GetByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, "user-head", levels[0].ApproverID)
	assert.Equal(t, repository.LevelAwaiting, levels[0].Status)

	stored, err := f.store.Get(ctx, doc.OriginalKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("office-bytes"), stored)

	assert.Contains(t, f.notifier.events, "document_submitted")
	assert.Contains(t, f.notifier.events, "approval_required")

	trail, err := f.audit.GetByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "submitted", trail[0].Action)
}

func TestSubmitRejectsUnsupportedFormat(t *testing.T) {
	f := newDocumentFixture(t)

	_, err := f.svc.Submit(context.Background(), submitRequest("installer.exe", []byte("MZ")))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.Code(err))
	assert.Empty(t, f.repo.docs, "rejected submissions must persist nothing")
	assert.Empty(t, f.store.objects)
}

func TestSubmitRejectsEmptyUpload(t *testing.T) {
	f := newDocumentFixture(t)

	_, err := f.svc.Submit(context.Background(), submitRequest("contract.pdf", nil))
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.Code(err))

	req := submitRequest("contract.pdf", []byte("%PDF"))
	req.Title = "   "
	_, err = f.svc.Submit(context.Background(), req)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.Code(err))
}

func TestSubmitFailsWhenChainCannotBeBuilt(t *testing.T) {
	f := newDocumentFixture(t)
	req := submitRequest("contract.pdf", []byte("%PDF"))
	req.Department = "UNKNOWN_DEPT"

	_, err := f.svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConflict, errors.Code(err))
	assert.Empty(t, f.repo.docs)
}

func TestResubmitForksFromRevisionRequested(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, submitRequest("contract.pdf", []byte("%PDF-v1")))
	require.NoError(t, err)

	// only a halted document may be resubmitted
	_, err = f.svc.Resubmit(ctx, first.ID, submitRequest("contract.pdf", []byte("%PDF-v2")))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConflict, errors.Code(err))

	f.repo.docs[first.ID].Status = repository.DocumentRevisionRequested

	second, err := f.svc.Resubmit(ctx, first.ID, submitRequest("contract.pdf", []byte("%PDF-v2")))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	require.NotNil(t, second.PreviousDocumentID)
	assert.Equal(t, first.ID, *second.PreviousDocumentID)
	assert.Equal(t, repository.DocumentPending, second.Status)

	// the halted document stays untouched
	prev, err := f.repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.DocumentRevisionRequested, prev.Status)
}

func TestGetPreviewNativePDFSkipsRenderer(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Submit(ctx, submitRequest("contract.pdf", []byte("%PDF-original")))
	require.NoError(t, err)

	pdf, err := f.svc.GetPreview(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-original"), pdf)
	assert.Zero(t, f.conv.calls)
}

func TestGetPreviewConvertsAndCachesOffice(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Submit(ctx, submitRequest("contract.docx", []byte("office-bytes")))
	require.NoError(t, err)

	pdf, err := f.svc.GetPreview(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-converted"), pdf)
	assert.Equal(t, 1, f.conv.calls)

	// second preview is served from the converted cache
	_, err = f.svc.GetPreview(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.conv.calls)
}

func TestGetPreviewRendererFailureCachesNothing(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Submit(ctx, submitRequest("contract.docx", []byte("office-bytes")))
	require.NoError(t, err)

	f.conv.err = convert.ErrRendererUnavailable
	_, err = f.svc.GetPreview(ctx, doc.ID)
	require.ErrorIs(t, err, convert.ErrRendererUnavailable)

	cached, err := f.store.Exists(ctx, f.store.Key(doc.ID, storage.KindConverted, "preview.pdf"))
	require.NoError(t, err)
	assert.False(t, cached)

	// once the renderer is back the preview succeeds
	f.conv.err = nil
	pdf, err := f.svc.GetPreview(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-converted"), pdf)
}

func TestGetSignedBeforeApproval(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Submit(ctx, submitRequest("contract.pdf", []byte("%PDF-original")))
	require.NoError(t, err)

	_, _, err = f.svc.GetSigned(ctx, doc.ID)
	require.ErrorIs(t, err, ErrNotYetApproved)
}

func TestGetOriginalGoneFromStorage(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Submit(ctx, submitRequest("contract.pdf", []byte("%PDF-original")))
	require.NoError(t, err)

	delete(f.store.objects, doc.OriginalKey)

	_, _, err = f.svc.GetOriginal(ctx, doc.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGone, errors.Code(err))
}
