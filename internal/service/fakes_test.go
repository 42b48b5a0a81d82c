package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
	"github.com/paperdesk/be-doc-approvals/internal/repository"
	"github.com/paperdesk/be-doc-approvals/internal/sign"
	"github.com/paperdesk/be-doc-approvals/internal/storage"
)

// memRepo is an in-memory implementation of DocumentRepo, LevelsRepo and
// SignaturesRepo with the same commit semantics as the SQL layer: decisions
// refuse already-decided levels and stale document versions.
type memRepo struct {
	mu     sync.Mutex
	docs   map[string]*repository.Document
	levels map[string][]*repository.ApprovalLevel
	sigs   map[string][]*repository.SignatureRecord
}

func newMemRepo() *memRepo {
	return &memRepo{
		docs:   make(map[string]*repository.Document),
		levels: make(map[string][]*repository.ApprovalLevel),
		sigs:   make(map[string][]*repository.SignatureRecord),
	}
}

func (m *memRepo) CreateWithLevels(ctx context.Context, doc *repository.Document, levels []*repository.ApprovalLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Version = 1
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	m.docs[doc.ID] = doc
	for _, level := range levels {
		level.ID = uuid.NewString()
		level.DocumentID = doc.ID
		level.CreatedAt = doc.CreatedAt
	}
	m.levels[doc.ID] = levels
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, id string) (*repository.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, errors.NotFound("document", id)
	}
	copied := *doc
	return &copied, nil
}

func (m *memRepo) List(ctx context.Context, department, status *string, limit, offset int) ([]*repository.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.Document
	for _, doc := range m.docs {
		if department != nil && doc.Department != *department {
			continue
		}
		if status != nil && string(doc.Status) != *status {
			continue
		}
		copied := *doc
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memRepo) CommitApproval(ctx context.Context, doc *repository.Document, level *repository.ApprovalLevel,
	sig *repository.SignatureRecord, newStatus repository.DocumentStatus, signedKey string, comment *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findLevel(doc.ID, level.ID)
	if stored == nil || stored.Status.Decided() {
		return errors.New(errors.ErrCodeConflict, "approval level already decided")
	}
	current := m.docs[doc.ID]
	if current.Version != doc.Version {
		return errors.New(errors.ErrCodeConflict, "document changed concurrently, decision not applied")
	}

	sig.ID = uuid.NewString()
	sig.SignedAt = time.Now()
	m.sigs[doc.ID] = append(m.sigs[doc.ID], sig)

	now := time.Now()
	stored.Status = repository.LevelApproved
	stored.Comment = comment
	stored.SignatureID = &sig.ID
	stored.DecidedAt = &now

	current.Status = newStatus
	current.SignedKey = &signedKey
	current.Version++
	current.UpdatedAt = now

	*doc = *current
	*level = *stored
	return nil
}

func (m *memRepo) CommitHalt(ctx context.Context, doc *repository.Document, level *repository.ApprovalLevel,
	levelStatus repository.LevelStatus, newStatus repository.DocumentStatus, comment *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findLevel(doc.ID, level.ID)
	if stored == nil || stored.Status.Decided() {
		return errors.New(errors.ErrCodeConflict, "approval level already decided")
	}
	current := m.docs[doc.ID]
	if current.Version != doc.Version {
		return errors.New(errors.ErrCodeConflict, "document changed concurrently, decision not applied")
	}

	now := time.Now()
	stored.Status = levelStatus
	stored.Comment = comment
	stored.DecidedAt = &now

	current.Status = newStatus
	current.Version++
	current.UpdatedAt = now

	*doc = *current
	*level = *stored
	return nil
}

func (m *memRepo) GetByDocumentID(ctx context.Context, documentID string) ([]*repository.ApprovalLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	levels := m.levels[documentID]
	out := make([]*repository.ApprovalLevel, len(levels))
	for i, level := range levels {
		copied := *level
		out[i] = &copied
	}
	return out, nil
}

func (m *memRepo) GetPendingForApprover(ctx context.Context, approverID string) ([]*repository.ApprovalLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.ApprovalLevel
	for docID, levels := range m.levels {
		doc := m.docs[docID]
		if doc.Status != repository.DocumentPending && doc.Status != repository.DocumentInReview {
			continue
		}
		for _, level := range levels {
			if level.ApproverID == approverID && level.Status == repository.LevelAwaiting {
				copied := *level
				out = append(out, &copied)
			}
		}
	}
	return out, nil
}

func (m *memRepo) findLevel(docID, levelID string) *repository.ApprovalLevel {
	for _, level := range m.levels[docID] {
		if level.ID == levelID {
			return level
		}
	}
	return nil
}

// signatureReader exposes the SignaturesRepo view of memRepo.
type signatureReader struct{ repo *memRepo }

func (s signatureReader) GetByDocumentID(ctx context.Context, documentID string) ([]*repository.SignatureRecord, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	return append([]*repository.SignatureRecord(nil), s.repo.sigs[documentID]...), nil
}

// fakeArtifactStore keeps artifacts in a map.
type fakeArtifactStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{objects: make(map[string][]byte)}
}

func (f *fakeArtifactStore) Key(documentID string, kind storage.Kind, name string) string {
	return fmt.Sprintf("mem://%s/%s/%s", documentID, kind, name)
}

func (f *fakeArtifactStore) Put(ctx context.Context, documentID string, kind storage.Kind, name string, data []byte) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.Key(documentID, kind, name)
	f.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (f *fakeArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New(errors.ErrCodeGone, "artifact is no longer available in storage")
	}
	return data, nil
}

func (f *fakeArtifactStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

// fakeConverter returns canned PDF bytes or a canned error.
type fakeConverter struct {
	out   []byte
	err   error
	calls int
}

func (f *fakeConverter) Convert(ctx context.Context, src []byte, ext string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

// fakeEmbedder records embed calls instead of doing PDF work.
type fakeEmbedder struct {
	pageCount int
	embedErr  error
	calls     int
	lastSigs  []sign.PlacedSignature
}

func (f *fakeEmbedder) PageCount(base []byte) (int, error) {
	if f.pageCount == 0 {
		return 1, nil
	}
	return f.pageCount, nil
}

func (f *fakeEmbedder) Embed(base []byte, sigs []sign.PlacedSignature) ([]byte, error) {
	f.calls++
	f.lastSigs = sigs
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := append([]byte(nil), base...)
	for range sigs {
		out = append(out, []byte("+sig")...)
	}
	return out, nil
}

// fakeNotifier records published events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) PublishDocumentEvent(ctx context.Context, eventType, documentID, actorID string, recipients []string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

// fakeAudit records audit entries.
type fakeAudit struct {
	mu      sync.Mutex
	entries []*repository.AuditEntry
}

func (f *fakeAudit) Append(ctx context.Context, entry *repository.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) GetByDocumentID(ctx context.Context, documentID string) ([]*repository.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.AuditEntry
	for _, entry := range f.entries {
		if entry.DocumentID == documentID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// fakeRules returns a canned routing rule.
type fakeRules struct {
	rule *repository.RoutingRule
	err  error
}

func (f *fakeRules) FindMatching(ctx context.Context, department, docType string) (*repository.RoutingRule, error) {
	return f.rule, f.err
}

// fakeRoles serves a static roster keyed by "department/role".
type fakeRoles struct {
	roster map[string][]*repository.RoleAssignment
}

func (f *fakeRoles) GetActiveByRole(ctx context.Context, department, role string) ([]*repository.RoleAssignment, error) {
	return f.roster[department+"/"+role], nil
}
