package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/mtgate/internal/access/domain"
	alerting "github.com/felixgeelhaar/mtgate/internal/alerting/domain"
)

type mockRepository struct {
	mu      sync.Mutex
	records map[domain.SubscriberID]domain.Entitlement

	upserts   int
	getErr    error
	upsertErr []error
	setErr    map[domain.SubscriberID]error
	markErr   error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		records: make(map[domain.SubscriberID]domain.Entitlement),
		setErr:  make(map[domain.SubscriberID]error),
	}
}

func (r *mockRepository) put(e domain.Entitlement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[e.SubscriberID] = e
}

func (r *mockRepository) Get(ctx context.Context, id domain.SubscriberID) (*domain.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	e, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (r *mockRepository) ListActive(ctx context.Context) ([]domain.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Entitlement
	for _, e := range r.records {
		if e.Active {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriberID < out[j].SubscriberID })
	return out, nil
}

func (r *mockRepository) CountActive(ctx context.Context) (int, error) {
	active, _ := r.ListActive(ctx)
	return len(active), nil
}

func (r *mockRepository) CountAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records), nil
}

func (r *mockRepository) InsertOrUpdate(ctx context.Context, e *domain.Entitlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.upsertErr) > 0 {
		err := r.upsertErr[0]
		r.upsertErr = r.upsertErr[1:]
		if err != nil {
			return err
		}
	}
	for id, other := range r.records {
		if id != e.SubscriberID && other.Credential == e.Credential {
			return domain.ErrDuplicateCredential
		}
	}
	r.upserts++
	r.records[e.SubscriberID] = *e
	return nil
}

func (r *mockRepository) SetActive(ctx context.Context, id domain.SubscriberID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.setErr[id]; err != nil {
		return err
	}
	e, ok := r.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Active = active
	r.records[id] = e
	return nil
}

func (r *mockRepository) MarkTrialConsumed(ctx context.Context, id domain.SubscriberID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	e, ok := r.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.TrialConsumed = true
	r.records[id] = e
	return nil
}

func (r *mockRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Entitlement
	for _, e := range r.records {
		if e.Active && e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriberID < out[j].SubscriberID })
	return out, nil
}

func (r *mockRepository) Upserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts
}

var errProxyTimeout = errors.New("restart timed out")

type fakeProxy struct {
	mu    sync.Mutex
	calls [][]string
	errs  []error
}

func (p *fakeProxy) Converge(ctx context.Context, credentials []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]string(nil), credentials...))
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return err
	}
	return nil
}

func (p *fakeProxy) failNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, errs...)
}

func (p *fakeProxy) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProxy) Last() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	return p.calls[len(p.calls)-1]
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alerting.Alert
}

func (n *recordingNotifier) Notify(ctx context.Context, alert alerting.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func (n *recordingNotifier) Kinds() []alerting.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]alerting.Kind, 0, len(n.alerts))
	for _, a := range n.alerts {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

func (n *recordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = nil
}

// sequentialCredentials yields cred-1, cred-2, ...
func sequentialCredentials() domain.CredentialGenerator {
	var mu sync.Mutex
	n := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("cred-%d", n), nil
	}
}
