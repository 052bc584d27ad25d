package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"mybeatfi/api/internal/config"
	"mybeatfi/api/internal/negotiation"
	"mybeatfi/api/internal/store"
)

// fakeStore keeps rows in memory and mirrors the two negotiation
// procedures. The func fields override individual calls.
type fakeStore struct {
	mu sync.Mutex

	profiles    map[string]store.Profile
	tracks      map[string]store.Track
	proposals   map[string]store.Proposal
	messages    map[string][]store.NegotiationMessage
	briefs      map[string]store.CustomSyncRequest
	submissions map[string]store.SyncSubmission
	discounts   map[string]store.Discount
	refresh     map[string]string
	revoked     map[string]bool
	taxonomy    map[string][]store.TaxonomyItem

	acceptanceCalls int
	rejectionCalls  int
	termUpdates     []store.NegotiatedUpdate
	paymentUpdates  []store.PaymentUpdate

	pingFn         func(context.Context) error
	acceptanceFn   func(context.Context, string, bool) (string, error)
	insertTaxonFn  func(context.Context, string, store.TaxonomyItem) (store.TaxonomyItem, error)
	markNegotiated func(context.Context, string, string, string) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:    map[string]store.Profile{},
		tracks:      map[string]store.Track{},
		proposals:   map[string]store.Proposal{},
		messages:    map[string][]store.NegotiationMessage{},
		briefs:      map[string]store.CustomSyncRequest{},
		submissions: map[string]store.SyncSubmission{},
		discounts:   map[string]store.Discount{},
		refresh:     map[string]string{},
		revoked:     map[string]bool{},
		taxonomy:    map[string][]store.TaxonomyItem{},
	}
}

func newTestService(fs *fakeStore, opts Options) *Service {
	svc, err := New(config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
		AppURL:     "https://app.test",
	}, fs, opts)
	if err != nil {
		panic(err)
	}
	svc.async = func(fn func()) { fn() }
	return svc
}

// seedProposal stores a client, a producer, their track and an open
// proposal between them.
func (f *fakeStore) seedProposal(p store.Proposal) store.Proposal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == "" {
		p.ID = "proposal-1"
	}
	if p.ClientID == "" {
		p.ClientID = "client-1"
	}
	if p.ProducerID == "" {
		p.ProducerID = "producer-1"
	}
	if p.TrackID == "" {
		p.TrackID = "track-1"
	}
	if p.Status == "" {
		p.Status = negotiation.StatusPending
	}
	if p.ClientStatus == "" {
		p.ClientStatus = negotiation.PartyPending
	}
	if p.ProducerStatus == "" {
		p.ProducerStatus = negotiation.PartyPending
	}
	if p.NegotiationStatus == "" {
		p.NegotiationStatus = negotiation.NegotiationPending
	}
	if p.PaymentStatus == "" {
		p.PaymentStatus = PaymentUnpaid
	}
	if p.PaymentTerms == "" {
		p.PaymentTerms = "immediate"
	}
	if p.ExpirationDate.IsZero() {
		p.ExpirationDate = time.Now().Add(30 * 24 * time.Hour)
	}
	p.TrackTitle = "Night Drive"
	p.ClientName, p.ClientEmail = "Casey Client", "client@example.com"
	p.ProducerName, p.ProducerEmail = "Pat Producer", "producer@example.com"

	f.profiles[p.ClientID] = store.Profile{ID: p.ClientID, DisplayName: p.ClientName, Email: p.ClientEmail, AccountType: "client", IsEmailVerified: true}
	f.profiles[p.ProducerID] = store.Profile{ID: p.ProducerID, DisplayName: p.ProducerName, Email: p.ProducerEmail, AccountType: "producer", IsEmailVerified: true}
	f.tracks[p.TrackID] = store.Track{ID: p.TrackID, ProducerID: p.ProducerID, ProducerName: p.ProducerName, Title: p.TrackTitle}
	f.proposals[p.ID] = p
	return p
}

func (f *fakeStore) proposal(id string) store.Proposal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.proposals[id]
}

func (f *fakeStore) thread(id string) []store.NegotiationMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.NegotiationMessage(nil), f.messages[id]...)
}

func (f *fakeStore) GetProfileByEmail(_ context.Context, email string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return store.Profile{}, sql.ErrNoRows
}

func (f *fakeStore) CreateProfile(_ context.Context, profile store.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeStore) VerifyProfileEmail(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.profiles {
		if token != "" && p.VerificationToken == token {
			p.IsEmailVerified = true
			p.VerificationToken = ""
			f.profiles[id] = p
			return id, nil
		}
	}
	return "", sql.ErrNoRows
}

func (f *fakeStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return sql.ErrNoRows
	}
	p.PasswordHash = hash
	f.profiles[userID] = p
	return nil
}

func (f *fakeStore) CreatePasswordReset(context.Context, string, string, time.Time) error {
	return nil
}

func (f *fakeStore) ConsumePasswordReset(context.Context, string) (string, error) {
	return "", sql.ErrNoRows
}

func (f *fakeStore) GetProfile(_ context.Context, userID string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return store.Profile{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, hash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[hash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, hash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[hash]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, hash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) GetTrack(_ context.Context, id string) (store.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tracks[id]
	if !ok {
		return store.Track{}, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeStore) GetProposal(_ context.Context, id string) (store.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return store.Proposal{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) ListProposals(_ context.Context, filter store.ProposalFilter) ([]store.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Proposal{}
	for _, p := range f.proposals {
		if filter.ClientID != "" && p.ClientID != filter.ClientID {
			continue
		}
		if filter.ProducerID != "" && p.ProducerID != filter.ProducerID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CreateProposal(_ context.Context, p store.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ClientStatus == "" {
		p.ClientStatus = negotiation.PartyPending
	}
	if p.ProducerStatus == "" {
		p.ProducerStatus = negotiation.PartyPending
	}
	if p.NegotiationStatus == "" {
		p.NegotiationStatus = negotiation.NegotiationPending
	}
	if p.PaymentStatus == "" {
		p.PaymentStatus = PaymentUnpaid
	}
	if track, ok := f.tracks[p.TrackID]; ok {
		p.TrackTitle = track.Title
	}
	if client, ok := f.profiles[p.ClientID]; ok {
		p.ClientName, p.ClientEmail = client.DisplayName, client.Email
	}
	if producer, ok := f.profiles[p.ProducerID]; ok {
		p.ProducerName, p.ProducerEmail = producer.DisplayName, producer.Email
	}
	f.proposals[p.ID] = p
	return nil
}

func (f *fakeStore) ListNegotiations(_ context.Context, id string) ([]store.NegotiationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.NegotiationMessage{}, f.messages[id]...), nil
}

func (f *fakeStore) InsertNegotiation(_ context.Context, m store.NegotiationMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ProposalID] = append(f.messages[m.ProposalID], m)
	return nil
}

func (f *fakeStore) MarkNegotiating(ctx context.Context, id, senderID, reopen string) error {
	if f.markNegotiated != nil {
		return f.markNegotiated(ctx, id, senderID, reopen)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.NegotiationStatus = negotiation.NegotiationNegotiating
	p.LastMessageSenderID = &senderID
	switch {
	case reopen == string(negotiation.RoleClient) && p.ClientStatus == negotiation.PartyAccepted:
		p.ClientStatus = negotiation.PartyPending
	case reopen == string(negotiation.RoleProducer) && p.ProducerStatus == negotiation.PartyAccepted:
		p.ProducerStatus = negotiation.PartyPending
	}
	f.proposals[id] = p
	return nil
}

func (f *fakeStore) UpdateNegotiatedTerms(_ context.Context, id string, update store.NegotiatedUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return sql.ErrNoRows
	}
	f.termUpdates = append(f.termUpdates, update)
	if update.Amount != nil {
		p.NegotiatedAmount = update.Amount
	}
	if update.PaymentTerms != nil {
		p.NegotiatedPaymentTerms = update.PaymentTerms
	}
	if update.Terms != nil {
		p.NegotiatedTerms = update.Terms
	}
	if update.ClientStatus != "" {
		p.ClientStatus = update.ClientStatus
	}
	if update.ProducerStatus != "" {
		p.ProducerStatus = update.ProducerStatus
	}
	f.proposals[id] = p
	return nil
}

func (f *fakeStore) SetPartyStatus(_ context.Context, id, role, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return sql.ErrNoRows
	}
	if role == "client" {
		p.ClientStatus = status
	} else {
		p.ProducerStatus = status
	}
	f.proposals[id] = p
	return nil
}

func (f *fakeStore) HandleNegotiationAcceptance(ctx context.Context, id string, isSync bool) (string, error) {
	f.mu.Lock()
	f.acceptanceCalls++
	f.mu.Unlock()
	if f.acceptanceFn != nil {
		return f.acceptanceFn(ctx, id, isSync)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	if p.Status == negotiation.StatusRejected {
		return "", store.ErrInvalidState
	}
	status, resolved := negotiation.Resolve(p.ClientStatus, p.ProducerStatus)
	amount := p.SyncFee
	if p.NegotiatedAmount != nil {
		amount = *p.NegotiatedAmount
	}
	terms := p.PaymentTerms
	if p.NegotiatedPaymentTerms != nil {
		terms = *p.NegotiatedPaymentTerms
	}
	p.FinalAmount, p.FinalPaymentTerms = &amount, &terms
	p.NegotiationStatus = resolved
	if status != "" {
		p.Status = status
	}
	f.proposals[id] = p
	return resolved, nil
}

func (f *fakeStore) HandleNegotiationRejection(_ context.Context, id string, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectionCalls++
	p, ok := f.proposals[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	if p.Status == negotiation.StatusAccepted {
		return "", store.ErrInvalidState
	}
	p.Status = negotiation.StatusRejected
	p.NegotiationStatus = negotiation.NegotiationRejected
	if p.ClientStatus != negotiation.PartyAccepted {
		p.ClientStatus = negotiation.PartyRejected
	}
	if p.ProducerStatus != negotiation.PartyAccepted {
		p.ProducerStatus = negotiation.PartyRejected
	}
	f.proposals[id] = p
	return negotiation.NegotiationRejected, nil
}

func (f *fakeStore) UpdatePayment(_ context.Context, id string, update store.PaymentUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return sql.ErrNoRows
	}
	f.paymentUpdates = append(f.paymentUpdates, update)
	p.PaymentStatus = update.Status
	if update.InvoiceURL != "" {
		url := update.InvoiceURL
		p.InvoiceURL = &url
	}
	if update.DueDate != nil {
		p.PaymentDueDate = update.DueDate
	}
	f.proposals[id] = p
	return nil
}

func (f *fakeStore) ListTaxonomy(_ context.Context, table store.TaxonomyTable) ([]store.TaxonomyItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.TaxonomyItem{}, f.taxonomy[table.Parent]...), nil
}

func (f *fakeStore) InsertTaxonomyItem(ctx context.Context, table string, item store.TaxonomyItem) (store.TaxonomyItem, error) {
	if f.insertTaxonFn != nil {
		return f.insertTaxonFn(ctx, table, item)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.taxonomy[table] {
		if existing.Name == item.Name {
			return store.TaxonomyItem{}, store.ErrDuplicate
		}
	}
	f.taxonomy[table] = append(f.taxonomy[table], item)
	return item, nil
}

func (f *fakeStore) InsertTaxonomyChild(_ context.Context, table, _ string, item store.TaxonomyItem) (store.TaxonomyItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taxonomy[table] = append(f.taxonomy[table], item)
	return item, nil
}

func (f *fakeStore) UpdateTaxonomyItem(context.Context, string, string, string, string) error {
	return nil
}

func (f *fakeStore) UpdateTaxonomyChild(context.Context, string, string, string, string, string, string) error {
	return nil
}

func (f *fakeStore) DeleteTaxonomyItem(_ context.Context, table, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.taxonomy[table]
	for i, item := range items {
		if item.ID == id {
			f.taxonomy[table] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) DeleteTaxonomyChild(context.Context, string, string, string, string) error {
	return nil
}

func (f *fakeStore) ListDiscounts(context.Context) ([]store.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Discount{}
	for _, d := range f.discounts {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) GetDiscount(_ context.Context, id string) (store.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.discounts[id]
	if !ok {
		return store.Discount{}, sql.ErrNoRows
	}
	return d, nil
}

func (f *fakeStore) InsertDiscount(_ context.Context, d store.Discount) (store.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.discounts {
		if existing.Code == d.Code {
			return store.Discount{}, store.ErrDuplicate
		}
	}
	f.discounts[d.ID] = d
	return d, nil
}

func (f *fakeStore) UpdateDiscount(_ context.Context, d store.Discount) (store.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.discounts[d.ID]; !ok {
		return store.Discount{}, sql.ErrNoRows
	}
	f.discounts[d.ID] = d
	return d, nil
}

func (f *fakeStore) DeleteDiscount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.discounts[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.discounts, id)
	return nil
}

func (f *fakeStore) GetCustomSyncRequest(_ context.Context, id string) (store.CustomSyncRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.briefs[id]
	if !ok {
		return store.CustomSyncRequest{}, sql.ErrNoRows
	}
	return r, nil
}

func (f *fakeStore) ListCustomSyncRequests(_ context.Context, clientID string) ([]store.CustomSyncRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.CustomSyncRequest{}
	for _, r := range f.briefs {
		if clientID == "" && r.Status != BriefOpen {
			continue
		}
		if clientID != "" && r.ClientID != clientID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) InsertCustomSyncRequest(_ context.Context, r store.CustomSyncRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.briefs[r.ID] = r
	return nil
}

func (f *fakeStore) UpdateCustomSyncRequestStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.briefs[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Status = status
	f.briefs[id] = r
	return nil
}

func (f *fakeStore) ListSubmissions(_ context.Context, requestID string) ([]store.SyncSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.SyncSubmission{}
	for _, sub := range f.submissions {
		if sub.RequestID == requestID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSubmission(_ context.Context, id string) (store.SyncSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.submissions[id]
	if !ok {
		return store.SyncSubmission{}, sql.ErrNoRows
	}
	return sub, nil
}

func (f *fakeStore) InsertSubmission(_ context.Context, item store.SyncSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.submissions {
		if sub.RequestID == item.RequestID && sub.TrackID == item.TrackID {
			return store.ErrDuplicate
		}
	}
	f.submissions[item.ID] = item
	return nil
}

func (f *fakeStore) UpdateSubmissionStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.submissions[id]
	if !ok {
		return sql.ErrNoRows
	}
	sub.Status = status
	f.submissions[id] = sub
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}
