package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunteer-hub/volunteer-hub/internal/audit"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/db/repositories"
	"github.com/volunteer-hub/volunteer-hub/internal/identity"
	"github.com/volunteer-hub/volunteer-hub/internal/notify"
	"github.com/volunteer-hub/volunteer-hub/internal/telemetry"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeApps struct {
	apps       map[int64]*models.TeamApplication
	getErr     error
	approveErr error
	entries    []*models.AuditLog
}

func (f *fakeApps) GetByID(_ context.Context, id int64) (*models.TeamApplication, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.apps[id], nil
}

func (f *fakeApps) ApproveWithAudit(_ context.Context, id int64, approvedBy, stage string, entry *models.AuditLog) (time.Time, error) {
	if f.approveErr != nil {
		return time.Time{}, f.approveErr
	}
	app := f.apps[id]
	if app == nil || app.Status != models.ApplicationStatusSubmitted {
		return time.Time{}, repositories.ErrStaleState
	}
	now := time.Now()
	app.Status = models.ApplicationStatusApproved
	app.OperationalStatus = models.OperationalStatusActive
	app.OnboardingStage = &stage
	app.ApprovedBy = &approvedBy
	app.ApprovedAt = &now
	f.entries = append(f.entries, entry)
	return now, nil
}

type fakeAccounts struct {
	byEmail   map[string]*models.IdentityAccount
	lookupErr map[string]error
	createErr map[string]error
	created   []identity.NewAccount
	lookups   int
	nextID    int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		byEmail:   map[string]*models.IdentityAccount{},
		lookupErr: map[string]error{},
		createErr: map[string]error{},
	}
}

func (f *fakeAccounts) LookupByEmail(_ context.Context, email string) (*models.IdentityAccount, error) {
	f.lookups++
	if err := f.lookupErr[email]; err != nil {
		return nil, err
	}
	return f.byEmail[email], nil
}

func (f *fakeAccounts) CreateAccount(_ context.Context, in identity.NewAccount) (*models.IdentityAccount, error) {
	if err := f.createErr[in.Email]; err != nil {
		return nil, err
	}
	f.nextID++
	acct := &models.IdentityAccount{ID: fmt.Sprintf("user-%d", f.nextID), Email: in.Email, Name: in.Name, EmailVerified: true}
	f.byEmail[in.Email] = acct
	f.created = append(f.created, in)
	return acct, nil
}

type membershipKey struct {
	appID  int64
	userID string
}

type fakeLinkage struct {
	memberships   map[membershipKey]*models.TeamMembership
	sources       map[string]*models.SignupSource
	membershipErr error
	sourceErr     error
}

func newFakeLinkage() *fakeLinkage {
	return &fakeLinkage{
		memberships: map[membershipKey]*models.TeamMembership{},
		sources:     map[string]*models.SignupSource{},
	}
}

func (f *fakeLinkage) UpsertTeamMembership(_ context.Context, m *models.TeamMembership) error {
	if f.membershipErr != nil {
		return f.membershipErr
	}
	f.memberships[membershipKey{m.TeamApplicationID, m.UserID}] = m
	return nil
}

func (f *fakeLinkage) UpsertSignupSource(_ context.Context, s *models.SignupSource) error {
	if f.sourceErr != nil {
		return f.sourceErr
	}
	f.sources[s.UserID+"/"+s.SourceType] = s
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg notify.Message) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

type fakeShipper struct {
	shipped []*audit.LogEntry
	err     error
}

func (f *fakeShipper) Ship(_ context.Context, e *audit.LogEntry) error {
	f.shipped = append(f.shipped, e)
	return f.err
}

func (f *fakeShipper) Close() error { return nil }

type harness struct {
	svc      *Service
	apps     *fakeApps
	accounts *fakeAccounts
	linkage  *fakeLinkage
	sender   *fakeSender
	shipper  *fakeShipper
}

const testCredential = "Tmp-Cred-12!"

func newHarness(apps ...*models.TeamApplication) *harness {
	h := &harness{
		apps:     &fakeApps{apps: map[int64]*models.TeamApplication{}},
		accounts: newFakeAccounts(),
		linkage:  newFakeLinkage(),
		sender:   &fakeSender{},
		shipper:  &fakeShipper{},
	}
	for _, a := range apps {
		h.apps.apps[a.ID] = a
	}
	h.svc = NewService(Dependencies{
		Applications:  h.apps,
		Accounts:      h.accounts,
		Linkage:       h.linkage,
		Notifier:      h.sender,
		Shipper:       h.shipper,
		LoginURL:      "https://volunteers.example.org/login",
		NewCredential: func() (string, error) { return testCredential, nil },
	})
	return h
}

func membersJSON(t *testing.T, members ...models.MemberRecord) []byte {
	t.Helper()
	b, err := json.Marshal(members)
	require.NoError(t, err)
	return b
}

func threeMembers() []models.MemberRecord {
	return []models.MemberRecord{
		{Name: "A", Email: "a@x.com"},
		{Name: "B", Email: "b@x.com"},
		{Name: "C", Email: "c@x.com"},
	}
}

func submittedApp(t *testing.T, id int64, members ...models.MemberRecord) *models.TeamApplication {
	return &models.TeamApplication{
		ID:                id,
		TeamName:          "Robotics Club",
		ContactEmail:      "lead@x.com",
		Members:           membersJSON(t, members...),
		Status:            models.ApplicationStatusSubmitted,
		OperationalStatus: models.OperationalStatusPending,
	}
}

var staff = Actor{UserID: "staff-1", Email: "staff@example.org", Role: "staff"}

// ---------------------------------------------------------------------------
// Approve end to end
// ---------------------------------------------------------------------------

func TestApprove_EndToEnd(t *testing.T) {
	app := submittedApp(t, 42, threeMembers()...)
	h := newHarness(app)
	before := testutil.ToFloat64(telemetry.ApprovalsTotal.WithLabelValues("approved"))

	summary, err := h.svc.Approve(context.Background(), staff, 42)
	require.NoError(t, err)

	assert.True(t, summary.OK)
	assert.Len(t, summary.CreatedUsers, 3)
	assert.Nil(t, summary.Errors)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"},
		[]string{summary.CreatedUsers[0].Email, summary.CreatedUsers[1].Email, summary.CreatedUsers[2].Email})

	assert.Equal(t, models.ApplicationStatusApproved, app.Status)
	assert.Equal(t, models.OperationalStatusActive, app.OperationalStatus)
	require.NotNil(t, app.OnboardingStage)
	assert.Equal(t, "orientation", *app.OnboardingStage)
	assert.Equal(t, "staff-1", *app.ApprovedBy)

	assert.Len(t, h.sender.sent, 3)
	assert.Contains(t, h.sender.sent[0].Body, testCredential)
	assert.Contains(t, h.sender.sent[0].Body, "https://volunteers.example.org/login")

	assert.Len(t, h.linkage.memberships, 3)
	assert.Len(t, h.linkage.sources, 3)

	require.Len(t, h.apps.entries, 1)
	entry := h.apps.entries[0]
	assert.Equal(t, ActionApproved, entry.Action)
	assert.Equal(t, "42", *entry.ResourceID)
	assert.Equal(t, 3, entry.Metadata["created_count"])
	assert.Equal(t, int64(42), entry.Metadata["application_id"])
	assert.Equal(t, "Robotics Club", entry.Metadata["team_name"])
	assert.Len(t, entry.Metadata["created_user_ids"], 3)
	assert.NotContains(t, entry.Metadata, "errors")

	require.Len(t, h.shipper.shipped, 1)
	assert.Equal(t, ActionApproved, h.shipper.shipped[0].Action)

	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.ApprovalsTotal.WithLabelValues("approved")))
}

func TestApprove_AdminAllowed(t *testing.T) {
	h := newHarness(submittedApp(t, 1, threeMembers()...))
	_, err := h.svc.Approve(context.Background(), Actor{UserID: "admin-1", Role: "admin"}, 1)
	assert.NoError(t, err)
}

func TestApprove_UnauthorizedRolesPerformNoWrites(t *testing.T) {
	for _, role := range []string{"volunteer", "teacher", "chapter_lead", "", "superuser"} {
		t.Run("role="+role, func(t *testing.T) {
			app := submittedApp(t, 7, threeMembers()...)
			h := newHarness(app)

			_, err := h.svc.Approve(context.Background(), Actor{UserID: "u", Role: role, Department: "outreach"}, 7)
			assert.ErrorIs(t, err, ErrForbidden)
			assert.Zero(t, h.accounts.lookups)
			assert.Empty(t, h.accounts.created)
			assert.Empty(t, h.linkage.memberships)
			assert.Empty(t, h.apps.entries)
			assert.Equal(t, models.ApplicationStatusSubmitted, app.Status)
		})
	}
}

func TestApprove_AlreadyApprovedIsRefused(t *testing.T) {
	app := submittedApp(t, 42, threeMembers()...)
	h := newHarness(app)

	_, err := h.svc.Approve(context.Background(), staff, 42)
	require.NoError(t, err)
	createdBefore := len(h.accounts.created)

	_, err = h.svc.Approve(context.Background(), staff, 42)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Len(t, h.accounts.created, createdBefore)
	assert.Len(t, h.apps.entries, 1)
}

func TestApprove_PartialFailure(t *testing.T) {
	app := submittedApp(t, 5, threeMembers()...)
	h := newHarness(app)
	h.accounts.createErr["b@x.com"] = identity.ErrEmailTaken

	summary, err := h.svc.Approve(context.Background(), staff, 5)
	require.NoError(t, err)

	assert.Len(t, summary.CreatedUsers, 2)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "b@x.com", summary.Errors[0].Email)
	assert.Equal(t, identity.ErrEmailTaken.Error(), summary.Errors[0].Error)
	assert.Equal(t, models.ApplicationStatusApproved, app.Status)

	require.Len(t, h.apps.entries, 1)
	assert.Equal(t, 2, h.apps.entries[0].Metadata["created_count"])
	assert.Equal(t, summary.Errors, h.apps.entries[0].Metadata["errors"])
}

func TestApprove_ZeroSuccessesLeavesStatusUnchanged(t *testing.T) {
	app := submittedApp(t, 9, threeMembers()...)
	h := newHarness(app)
	for _, m := range threeMembers() {
		h.accounts.lookupErr[m.Email] = errors.New("identity service unavailable")
	}

	summary, err := h.svc.Approve(context.Background(), staff, 9)
	assert.ErrorIs(t, err, ErrProvisioningFailed)
	require.NotNil(t, summary)
	assert.False(t, summary.OK)
	assert.Empty(t, summary.CreatedUsers)
	require.Len(t, summary.Errors, 3)
	for i, m := range threeMembers() {
		assert.Equal(t, MemberError{Email: m.NormalizedEmail(), Error: "account lookup failed"}, summary.Errors[i])
	}
	assert.Equal(t, models.ApplicationStatusSubmitted, app.Status)
	assert.Empty(t, h.apps.entries)
	assert.Empty(t, h.shipper.shipped)
}

func TestApprove_StaleStateBecomesAlreadyProcessed(t *testing.T) {
	h := newHarness(submittedApp(t, 3, threeMembers()...))
	h.apps.approveErr = fmt.Errorf("update: %w", repositories.ErrStaleState)

	_, err := h.svc.Approve(context.Background(), staff, 3)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestApprove_FinalizeDatabaseError(t *testing.T) {
	h := newHarness(submittedApp(t, 3, threeMembers()...))
	h.apps.approveErr = errors.New("connection reset")

	_, err := h.svc.Approve(context.Background(), staff, 3)
	require.Error(t, err)
	assert.Equal(t, "error", outcome(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestApprove_ShipperFailureIsIgnored(t *testing.T) {
	h := newHarness(submittedApp(t, 3, threeMembers()...))
	h.shipper.err = errors.New("webhook down")

	summary, err := h.svc.Approve(context.Background(), staff, 3)
	require.NoError(t, err)
	assert.True(t, summary.OK)
}

func TestApprove_LinkageErrorsAreReported(t *testing.T) {
	h := newHarness(submittedApp(t, 3, threeMembers()...))
	h.linkage.sourceErr = errors.New("constraint violation")

	summary, err := h.svc.Approve(context.Background(), staff, 3)
	require.NoError(t, err)
	assert.Len(t, summary.CreatedUsers, 3)
	require.Len(t, summary.Errors, 3)
	assert.Equal(t, "failed to record signup_sources", summary.Errors[0].Error)
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		app     *models.TeamApplication
		getErr  error
		wantErr error
	}{
		{"not found", nil, nil, ErrNotFound},
		{"approved", &models.TeamApplication{ID: 1, Status: models.ApplicationStatusApproved, Members: []byte(`[{},{},{}]`)}, nil, ErrAlreadyProcessed},
		{"rejected", &models.TeamApplication{ID: 1, Status: models.ApplicationStatusRejected, Members: []byte(`[{},{},{}]`)}, nil, ErrAlreadyProcessed},
		{"members absent", &models.TeamApplication{ID: 1, Status: models.ApplicationStatusSubmitted}, nil, ErrInvalidState},
		{"members null", &models.TeamApplication{ID: 1, Status: models.ApplicationStatusSubmitted, Members: []byte("null")}, nil, ErrInvalidState},
		{"members object", &models.TeamApplication{ID: 1, Status: models.ApplicationStatusSubmitted, Members: []byte(`{"a":1}`)}, nil, ErrInvalidState},
		{"members string", &models.TeamApplication{ID: 1, Status: models.ApplicationStatusSubmitted, Members: []byte(`"abc"`)}, nil, ErrInvalidState},
		{"two members", &models.TeamApplication{ID: 1, Status: models.ApplicationStatusSubmitted, Members: []byte(`[{"name":"A","email":"a@x.com"},{"name":"B","email":"b@x.com"}]`)}, nil, ErrInvalidState},
		{"malformed entry", &models.TeamApplication{ID: 1, Status: models.ApplicationStatusSubmitted, Members: []byte(`[1,2,3]`)}, nil, ErrInvalidState},
		{"valid", &models.TeamApplication{ID: 1, Status: models.ApplicationStatusSubmitted, Members: []byte(`[{"name":"A","email":"a@x.com"},{},{}]`)}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			if tt.app != nil {
				h.apps.apps[1] = tt.app
			}

			app, members, err := h.svc.Validate(context.Background(), staff, 1)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, app)
				return
			}
			require.NoError(t, err)
			assert.Len(t, members, 3)
			assert.Equal(t, "a@x.com", members[0].Email)
		})
	}
}

func TestValidate_TwoMembersCreatesNothing(t *testing.T) {
	h := newHarness(submittedApp(t, 2, threeMembers()[:2]...))

	_, err := h.svc.Approve(context.Background(), staff, 2)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "at least 3 members")
	assert.Zero(t, h.accounts.lookups)
}

func TestValidate_StoreError(t *testing.T) {
	h := newHarness()
	h.apps.getErr = errors.New("db down")

	_, _, err := h.svc.Validate(context.Background(), staff, 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "error", outcome(err))
}

// ---------------------------------------------------------------------------
// Provision
// ---------------------------------------------------------------------------

func TestProvision_SkipsIncompleteAndReportsDuplicateMembers(t *testing.T) {
	h := newHarness()
	failedBefore := testutil.ToFloat64(telemetry.MemberProvisioningTotal.WithLabelValues("failed"))

	results := h.svc.Provision(context.Background(), []models.MemberRecord{
		{Name: "A", Email: "a@x.com"},
		{Name: "", Email: "nameless@x.com"},
		{Name: "No Email", Email: "   "},
		{Name: "A again", Email: " A@X.com "},
	})

	require.Len(t, results, 2)
	require.NotNil(t, results[0].Success)
	assert.Equal(t, "a@x.com", results[0].Success.Email)

	require.NotNil(t, results[1].Failure)
	assert.Nil(t, results[1].Success)
	assert.Equal(t, "a@x.com", results[1].Failure.Email)
	assert.Equal(t, "duplicate email within the team", results[1].Failure.Reason)
	assert.Equal(t, "A again", results[1].Member.Name)

	assert.Len(t, h.accounts.created, 1)
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(telemetry.MemberProvisioningTotal.WithLabelValues("failed")))
}

func TestApprove_DuplicateMemberAppearsInErrors(t *testing.T) {
	h := newHarness(submittedApp(t, 4,
		models.MemberRecord{Name: "A", Email: "a@x.com"},
		models.MemberRecord{Name: "B", Email: "b@x.com"},
		models.MemberRecord{Name: "A twin", Email: "A@x.com"},
	))

	summary, err := h.svc.Approve(context.Background(), staff, 4)
	require.NoError(t, err)
	assert.True(t, summary.OK)
	assert.Len(t, summary.CreatedUsers, 2)
	assert.Equal(t, []MemberError{{Email: "a@x.com", Error: "duplicate email within the team"}}, summary.Errors)
}

func TestProvision_ReusesExistingAccount(t *testing.T) {
	h := newHarness()
	h.accounts.byEmail["a@x.com"] = &models.IdentityAccount{ID: "existing-1", Email: "a@x.com"}

	results := h.svc.Provision(context.Background(), []models.MemberRecord{{Name: "A", Email: "A@x.com", Phone: "555-0100"}})

	require.Len(t, results, 1)
	require.NotNil(t, results[0].Success)
	assert.Equal(t, "existing-1", results[0].Success.UserID)
	assert.False(t, results[0].Success.Created)
	assert.Equal(t, "555-0100", results[0].Success.Phone)
	assert.Empty(t, h.accounts.created)
	assert.Empty(t, h.sender.sent, "reused accounts get no welcome email")
}

func TestProvision_CreatesPreVerifiedAccountWithMetadata(t *testing.T) {
	h := newHarness()
	results := h.svc.Provision(context.Background(), []models.MemberRecord{
		{Name: " Ada ", Email: "ada@x.com", Phone: " 555 ", School: " Lincoln High "},
	})

	require.Len(t, results, 1)
	require.Len(t, h.accounts.created, 1)
	in := h.accounts.created[0]
	assert.Equal(t, identity.NewAccount{Email: "ada@x.com", Name: "Ada", Phone: "555", School: "Lincoln High", Credential: testCredential}, in)
	assert.True(t, results[0].Success.Created)
}

func TestProvision_FailuresAreIsolated(t *testing.T) {
	h := newHarness()
	h.accounts.lookupErr["b@x.com"] = errors.New("timeout")
	h.accounts.createErr["c@x.com"] = errors.New("insert failed")

	results := h.svc.Provision(context.Background(), []models.MemberRecord{
		{Name: "Bad", Email: "not-an-email"},
		{Name: "B", Email: "b@x.com"},
		{Name: "C", Email: "c@x.com"},
		{Name: "D", Email: "d@x.com"},
	})

	require.Len(t, results, 4)
	successes, failures := partition(results)
	assert.Len(t, successes, 1)
	assert.Equal(t, []MemberError{
		{Email: "not-an-email", Error: "invalid email address"},
		{Email: "b@x.com", Error: "account lookup failed"},
		{Email: "c@x.com", Error: "account creation failed"},
	}, failures)

	var perr *MemberProvisioningError
	require.True(t, errors.As(results[1].Failure, &perr))
	assert.EqualError(t, perr.Unwrap(), "timeout")
}

func TestProvision_CredentialFailure(t *testing.T) {
	h := newHarness()
	h.svc.newCredential = func() (string, error) { return "", errors.New("entropy exhausted") }

	results := h.svc.Provision(context.Background(), []models.MemberRecord{{Name: "A", Email: "a@x.com"}})
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Failure)
	assert.Empty(t, h.accounts.created)
}

func TestProvision_NotificationFailureKeepsSuccess(t *testing.T) {
	h := newHarness()
	h.sender.err = errors.New("smtp unavailable")
	before := testutil.ToFloat64(telemetry.WelcomeEmailsTotal.WithLabelValues("failed"))

	results := h.svc.Provision(context.Background(), []models.MemberRecord{{Name: "A", Email: "a@x.com"}})

	require.Len(t, results, 1)
	assert.NotNil(t, results[0].Success)
	assert.Nil(t, results[0].Failure)
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.WelcomeEmailsTotal.WithLabelValues("failed")))
}

func TestSendWelcome_ReturnsNotificationError(t *testing.T) {
	h := newHarness()
	h.sender.err = errors.New("smtp unavailable")

	nerr := h.svc.sendWelcome(context.Background(), "A", "a@x.com", testCredential)
	require.NotNil(t, nerr)
	assert.Equal(t, "a@x.com", nerr.Email)
	assert.True(t, strings.Contains(nerr.Error(), "smtp unavailable"))
}

// ---------------------------------------------------------------------------
// RecordLinkage
// ---------------------------------------------------------------------------

func TestRecordLinkage_Idempotent(t *testing.T) {
	h := newHarness()
	app := &models.TeamApplication{ID: 11, TeamName: "Chess", PrimaryContact: "a@x.com"}
	accts := []ProvisionedAccount{{UserID: "u1", Email: "a@x.com"}}

	assert.Empty(t, h.svc.RecordLinkage(context.Background(), app, accts))
	assert.Empty(t, h.svc.RecordLinkage(context.Background(), app, accts))

	assert.Len(t, h.linkage.memberships, 1)
	m := h.linkage.memberships[membershipKey{11, "u1"}]
	require.NotNil(t, m)
	assert.True(t, m.IsPrimaryContact)

	require.Len(t, h.linkage.sources, 1)
	src := h.linkage.sources["u1/team_application"]
	assert.Equal(t, int64(11), src.Metadata["application_id"])
	assert.Equal(t, "Chess", src.Metadata["team_name"])
}

func TestRecordLinkage_ErrorsDoNotAbort(t *testing.T) {
	h := newHarness()
	h.linkage.membershipErr = errors.New("fk violation")
	app := &models.TeamApplication{ID: 11}
	accts := []ProvisionedAccount{{UserID: "u1", Email: "a@x.com"}, {UserID: "u2", Email: "b@x.com"}}

	errs := h.svc.RecordLinkage(context.Background(), app, accts)

	require.Len(t, errs, 2)
	var lerr *LinkageWriteError
	require.True(t, errors.As(errs[1], &lerr))
	assert.Equal(t, "team_memberships", lerr.Table)
	assert.Equal(t, "u2", lerr.UserID)
	assert.Len(t, h.linkage.sources, 2, "signup sources are still written")
}

func TestIsPrimaryContact(t *testing.T) {
	tests := []struct {
		name    string
		primary string
		acct    ProvisionedAccount
		want    bool
	}{
		{"email case-insensitive", " A@X.com ", ProvisionedAccount{Email: "a@x.com"}, true},
		{"phone digits", "(555) 010-0100", ProvisionedAccount{Email: "a@x.com", Phone: "555.010.0100"}, true},
		{"different phone", "555-0100", ProvisionedAccount{Phone: "555-0199"}, false},
		{"name is not a match", "Alice", ProvisionedAccount{Email: "a@x.com", Phone: ""}, false},
		{"empty primary", "", ProvisionedAccount{Email: "a@x.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPrimaryContact(tt.primary, tt.acct))
		})
	}
}

// ---------------------------------------------------------------------------
// errors
// ---------------------------------------------------------------------------

func TestOutcome(t *testing.T) {
	tests := map[string]error{
		"approved":            nil,
		"forbidden":           ErrForbidden,
		"not_found":           ErrNotFound,
		"already_processed":   ErrAlreadyProcessed,
		"invalid_state":       fmt.Errorf("%w: short", ErrInvalidState),
		"provisioning_failed": ErrProvisioningFailed,
		"error":               errors.New("boom"),
	}
	for want, err := range tests {
		assert.Equal(t, want, outcome(err))
	}
}

func TestTypedErrorMessages(t *testing.T) {
	base := errors.New("cause")
	assert.Equal(t, "member a@x.com: invalid email address", (&MemberProvisioningError{Email: "a@x.com", Reason: "invalid email address", Err: base}).Error())
	assert.ErrorIs(t, &LinkageWriteError{Table: "t", Email: "a", Err: base}, base)
	assert.ErrorIs(t, &NotificationError{Email: "a", Err: base}, base)
}
