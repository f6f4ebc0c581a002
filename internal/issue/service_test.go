package issue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"issuedesk.org/internal/auth"
)

type fixture struct {
	svc   *Service
	users *auth.MemStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := auth.NewMemStore()
	svc, err := NewService(users, NewMemStore())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{svc: svc, users: users}
}

func (f *fixture) addUser(t *testing.T, name, org string) string {
	t.Helper()
	u := &auth.User{
		Name:         name,
		Organization: org,
		Email:        strings.ToLower(name) + "@example.com",
		PasswordHash: "x",
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u.ID
}

func (f *fixture) addIssue(t *testing.T, callerID, title string) View {
	t.Helper()
	v, err := f.svc.Create(context.Background(), callerID, CreateInput{
		Title:       title,
		Description: "something is broken",
	})
	if err != nil {
		t.Fatalf("create issue %q: %v", title, err)
	}
	return v
}

func TestCreateDefaults(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "Alice", "acme")

	v := f.addIssue(t, alice, "broken build")
	if v.Status != StatusOpen {
		t.Fatalf("expected OPEN default, got %s", v.Status)
	}
	if v.Priority != PriorityMedium {
		t.Fatalf("expected MEDIUM default, got %s", v.Priority)
	}
	if v.Label != nil || v.AssignedTo != nil {
		t.Fatal("expected null label and assignee")
	}
	if v.CreatedBy.ID != alice {
		t.Fatalf("wrong creator: %s", v.CreatedBy.ID)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "Alice", "acme")
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"short title", CreateInput{Title: "ab", Description: "long enough"}},
		{"long title", CreateInput{Title: strings.Repeat("t", 121), Description: "long enough"}},
		{"short description", CreateInput{Title: "valid title", Description: "ab"}},
		{"long description", CreateInput{Title: "valid title", Description: strings.Repeat("d", 5001)}},
		{"empty label", CreateInput{Title: "valid title", Description: "long enough", Label: ptr("")}},
		{"bad priority", CreateInput{Title: "valid title", Description: "long enough", Priority: ptrPriority("SOMEDAY")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, alice, tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestOrgIsolation(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "Alice", "acme")
	bob := f.addUser(t, "Bob", "globex")
	ctx := context.Background()

	v := f.addIssue(t, alice, "acme-only issue")

	// Direct fetch across organizations reads as not found, never
	// forbidden.
	if _, err := f.svc.Get(ctx, bob, v.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-org read, got %v", err)
	}

	// Cross-org list never includes the issue.
	views, meta, err := f.svc.List(ctx, bob, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 0 || meta.Total != 0 {
		t.Fatalf("cross-org list leaked %d issues", meta.Total)
	}

	// Same-org member sees it.
	carol := f.addUser(t, "Carol", "acme")
	got, err := f.svc.Get(ctx, carol, v.ID)
	if err != nil {
		t.Fatalf("same-org Get: %v", err)
	}
	if got.ID != v.ID {
		t.Fatalf("wrong issue: %s", got.ID)
	}
}

func TestOwnershipForbidsNonCreatorMutation(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "Alice", "acme")
	carol := f.addUser(t, "Carol", "acme")
	ctx := context.Background()

	v := f.addIssue(t, alice, "alice's issue")

	in := UpdateInput{Title: ptr("hijacked title")}
	if _, err := f.svc.Update(ctx, carol, v.ID, in); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for same-org non-creator update, got %v", err)
	}
	if err := f.svc.Delete(ctx, carol, v.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for same-org non-creator delete, got %v", err)
	}

	// Creator can mutate.
	got, err := f.svc.Update(ctx, alice, v.ID, UpdateInput{Status: ptrStatus(StatusResolved)})
	if err != nil {
		t.Fatalf("creator update: %v", err)
	}
	if got.Status != StatusResolved {
		t.Fatalf("status not applied: %s", got.Status)
	}
	if err := f.svc.Delete(ctx, alice, v.ID); err != nil {
		t.Fatalf("creator delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, alice, v.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestAssignmentStaysInOrganization(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "Alice", "acme")
	carol := f.addUser(t, "Carol", "acme")
	bob := f.addUser(t, "Bob", "globex")
	ctx := context.Background()

	// Cross-org assignment on create is rejected, not dropped.
	_, err := f.svc.Create(ctx, alice, CreateInput{
		Title:       "valid title",
		Description: "long enough",
		AssignedTo:  &bob,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for cross-org assignee, got %v", err)
	}

	// Unknown assignee reads the same as cross-org.
	ghost := "no-such-user"
	_, err = f.svc.Create(ctx, alice, CreateInput{
		Title:       "valid title",
		Description: "long enough",
		AssignedTo:  &ghost,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown assignee, got %v", err)
	}

	// Same-org assignment works, and can be cleared with null.
	v, err := f.svc.Create(ctx, alice, CreateInput{
		Title:       "valid title",
		Description: "long enough",
		AssignedTo:  &carol,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if v.AssignedTo == nil || v.AssignedTo.ID != carol {
		t.Fatalf("assignee not applied: %+v", v.AssignedTo)
	}

	v, err = f.svc.Update(ctx, alice, v.ID, UpdateInput{AssigneeSet: true})
	if err != nil {
		t.Fatalf("clear assignee: %v", err)
	}
	if v.AssignedTo != nil {
		t.Fatalf("assignee not cleared: %+v", v.AssignedTo)
	}

	// Cross-org assignment on update is rejected too.
	_, err = f.svc.Update(ctx, alice, v.ID, UpdateInput{AssigneeSet: true, AssignedTo: &bob})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for cross-org reassignment, got %v", err)
	}
}

func TestUpdateRequiresFields(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "Alice", "acme")
	v := f.addIssue(t, alice, "some issue")

	_, err := f.svc.Update(context.Background(), alice, v.ID, UpdateInput{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty update, got %v", err)
	}
}

func TestUpdateLabelSemantics(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "Alice", "acme")
	ctx := context.Background()

	v := f.addIssue(t, alice, "labeled issue")

	v, err := f.svc.Update(ctx, alice, v.ID, UpdateInput{LabelSet: true, Label: ptr("backend")})
	if err != nil {
		t.Fatalf("set label: %v", err)
	}
	if v.Label == nil || *v.Label != "backend" {
		t.Fatalf("label not set: %v", v.Label)
	}

	// Explicit null clears.
	v, err = f.svc.Update(ctx, alice, v.ID, UpdateInput{LabelSet: true})
	if err != nil {
		t.Fatalf("clear label: %v", err)
	}
	if v.Label != nil {
		t.Fatalf("label not cleared: %v", v.Label)
	}
}

func TestListFiltersAndPaging(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "Alice", "acme")
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		f.addIssue(t, alice, "routine issue")
	}
	urgent, err := f.svc.Create(ctx, alice, CreateInput{
		Title:       "database down",
		Description: "production outage",
		Priority:    ptrPriority(PriorityUrgent),
		Label:       ptr("ops"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Default paging: 10 per page, 13 total.
	views, meta, err := f.svc.List(ctx, alice, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 10 || meta.Total != 13 || meta.Pages != 2 || !meta.HasNext {
		t.Fatalf("unexpected page meta: %+v (%d items)", meta, len(views))
	}

	views, meta, err = f.svc.List(ctx, alice, Filter{Page: 2})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(views) != 3 || meta.HasNext {
		t.Fatalf("unexpected second page: %+v (%d items)", meta, len(views))
	}

	// Priority filter.
	views, _, err = f.svc.List(ctx, alice, Filter{Priority: PriorityUrgent})
	if err != nil {
		t.Fatalf("List by priority: %v", err)
	}
	if len(views) != 1 || views[0].ID != urgent.ID {
		t.Fatalf("priority filter failed: %d items", len(views))
	}

	// Label filter is case-insensitive exact.
	views, _, err = f.svc.List(ctx, alice, Filter{Label: "OPS"})
	if err != nil {
		t.Fatalf("List by label: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("label filter failed: %d items", len(views))
	}

	// Substring search.
	views, _, err = f.svc.List(ctx, alice, Filter{Query: "database"})
	if err != nil {
		t.Fatalf("List by query: %v", err)
	}
	if len(views) != 1 || views[0].ID != urgent.ID {
		t.Fatalf("query filter failed: %d items", len(views))
	}

	// Limit bound.
	if _, _, err := f.svc.List(ctx, alice, Filter{Limit: 500}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for oversized limit, got %v", err)
	}
}

func TestAssignees(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "Alice", "acme")
	f.addUser(t, "Carol", "acme")
	f.addUser(t, "Bob", "globex")

	assignees, err := f.svc.Assignees(context.Background(), alice)
	if err != nil {
		t.Fatalf("Assignees: %v", err)
	}
	if len(assignees) != 2 {
		t.Fatalf("expected 2 org members, got %d", len(assignees))
	}
	for _, a := range assignees {
		if a.Organization != "acme" {
			t.Fatalf("foreign member leaked: %+v", a)
		}
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "Alice", "acme")
	f.addUser(t, "Bob", "globex")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.addIssue(t, alice, "open issue")
	}
	v, err := f.svc.Create(ctx, alice, CreateInput{
		Title:       "urgent issue",
		Description: "long enough",
		Priority:    ptrPriority(PriorityUrgent),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Update(ctx, alice, v.ID, UpdateInput{Status: ptrStatus(StatusResolved)}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stats, err := f.svc.Stats(ctx, alice)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ByStatus[StatusOpen] != 3 || stats.ByStatus[StatusResolved] != 1 {
		t.Fatalf("unexpected status counts: %+v", stats.ByStatus)
	}
	if stats.ByPriority[PriorityUrgent] != 1 || stats.ByPriority[PriorityMedium] != 3 {
		t.Fatalf("unexpected priority counts: %+v", stats.ByPriority)
	}
	if len(stats.Recent) != 4 {
		t.Fatalf("expected 4 recent issues, got %d", len(stats.Recent))
	}
	// Most recently updated first.
	if stats.Recent[0].ID != v.ID {
		t.Fatalf("expected the updated issue first, got %s", stats.Recent[0].ID)
	}
}

func ptr(s string) *string { return &s }

func ptrStatus(s Status) *Status { return &s }

func ptrPriority(p Priority) *Priority { return &p }
