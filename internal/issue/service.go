package issue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"issuedesk.org/internal/auth"
)

const (
	minTitleLength       = 3
	maxTitleLength       = 120
	minDescriptionLength = 3
	maxDescriptionLength = 5000
	maxLabelLength       = 50

	defaultPageLimit = 10
	maxPageLimit     = 200

	recentLimit = 5
)

// Service enforces organization-scoped authorization over issues.
// Visibility is organization-wide (via the creator's organization);
// mutation is creator-only; assignment stays inside the caller's
// organization.
type Service struct {
	users  auth.UserStore
	issues Store
}

// NewService constructs the issue service.
func NewService(users auth.UserStore, issues Store) (*Service, error) {
	if users == nil || issues == nil {
		return nil, errors.New("issue: user and issue stores are required")
	}
	return &Service{users: users, issues: issues}, nil
}

// CanView reports whether caller may read the issue: same
// organization as the creator.
func CanView(caller, creator *auth.User) bool {
	return caller.Organization == creator.Organization
}

// CanMutate reports whether caller may update or delete the issue:
// creator only.
func CanMutate(caller *auth.User, is *Issue) bool {
	return caller.ID == is.CreatedBy
}

// CreateInput carries the fields for a new issue. Nil pointers take
// defaults.
type CreateInput struct {
	Title       string
	Description string
	Label       *string
	AssignedTo  *string
	Priority    *Priority
}

// UpdateInput carries a partial update. Set flags distinguish "absent"
// from "clear" for the nullable fields.
type UpdateInput struct {
	Title       *string
	Description *string
	Label       *string
	LabelSet    bool
	AssignedTo  *string
	AssigneeSet bool
	Status      *Status
	Priority    *Priority
}

// Empty reports whether the update carries no fields at all.
func (in UpdateInput) Empty() bool {
	return in.Title == nil && in.Description == nil && !in.LabelSet &&
		!in.AssigneeSet && in.Status == nil && in.Priority == nil
}

// Create stores a new issue owned by the caller. An assignee, if
// given, must belong to the caller's organization.
func (s *Service) Create(ctx context.Context, callerID string, in CreateInput) (View, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return View{}, err
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateTitle(in.Title); err != nil {
		return View{}, err
	}
	if err := validateDescription(in.Description); err != nil {
		return View{}, err
	}

	is := &Issue{
		Title:       in.Title,
		Description: in.Description,
		Status:      StatusOpen,
		Priority:    PriorityMedium,
		CreatedBy:   caller.ID,
	}
	if in.Label != nil {
		label := strings.TrimSpace(*in.Label)
		if err := validateLabel(label); err != nil {
			return View{}, err
		}
		is.Label = label
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return View{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, *in.Priority)
		}
		is.Priority = *in.Priority
	}
	var assignee *auth.User
	if in.AssignedTo != nil && *in.AssignedTo != "" {
		assignee, err = s.resolveAssignee(ctx, caller, *in.AssignedTo)
		if err != nil {
			return View{}, err
		}
		is.AssignedTo = assignee.ID
	}

	if err := s.issues.Create(ctx, is); err != nil {
		return View{}, err
	}
	return s.view(is, caller, assignee), nil
}

// Get returns an issue visible to the caller. Issues outside the
// caller's organization surface as not found, never as forbidden.
func (s *Service) Get(ctx context.Context, callerID, issueID string) (View, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return View{}, err
	}
	is, creator, err := s.findVisible(ctx, caller, issueID)
	if err != nil {
		return View{}, err
	}
	assignee, err := s.optionalUser(ctx, is.AssignedTo)
	if err != nil {
		return View{}, err
	}
	return s.view(is, creator, assignee), nil
}

// List returns the caller's organization page of issues plus paging
// metadata. The organization pre-filter is applied inside the store
// query.
func (s *Service) List(ctx context.Context, callerID string, f Filter) ([]View, PageMeta, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, PageMeta{}, err
	}
	if err := normalizeFilter(&f); err != nil {
		return nil, PageMeta{}, err
	}

	members, byID, err := s.orgMembers(ctx, caller.Organization)
	if err != nil {
		return nil, PageMeta{}, err
	}
	f.CreatorIDs = members

	items, total, err := s.issues.List(ctx, f)
	if err != nil {
		return nil, PageMeta{}, err
	}

	views := make([]View, 0, len(items))
	for _, is := range items {
		v, err := s.viewResolving(ctx, is, byID)
		if err != nil {
			return nil, PageMeta{}, err
		}
		views = append(views, v)
	}

	pages := total / f.Limit
	if total%f.Limit != 0 {
		pages++
	}
	meta := PageMeta{
		Page:    f.Page,
		Limit:   f.Limit,
		Total:   total,
		Pages:   pages,
		HasNext: f.Page*f.Limit < total,
	}
	return views, meta, nil
}

// Update applies a partial update. Only the creator may mutate; a
// same-organization non-creator gets forbidden, anyone else sees not
// found via the visibility check.
func (s *Service) Update(ctx context.Context, callerID, issueID string, in UpdateInput) (View, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return View{}, err
	}
	if in.Empty() {
		return View{}, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}

	is, _, err := s.findVisible(ctx, caller, issueID)
	if err != nil {
		return View{}, err
	}
	if !CanMutate(caller, is) {
		return View{}, ErrForbidden
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := validateTitle(title); err != nil {
			return View{}, err
		}
		is.Title = title
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		if err := validateDescription(description); err != nil {
			return View{}, err
		}
		is.Description = description
	}
	if in.LabelSet {
		if in.Label == nil {
			is.Label = ""
		} else {
			label := strings.TrimSpace(*in.Label)
			if err := validateLabel(label); err != nil {
				return View{}, err
			}
			is.Label = label
		}
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return View{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *in.Status)
		}
		is.Status = *in.Status
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return View{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, *in.Priority)
		}
		is.Priority = *in.Priority
	}
	var assignee *auth.User
	if in.AssigneeSet {
		if in.AssignedTo == nil || *in.AssignedTo == "" {
			is.AssignedTo = ""
		} else {
			assignee, err = s.resolveAssignee(ctx, caller, *in.AssignedTo)
			if err != nil {
				return View{}, err
			}
			is.AssignedTo = assignee.ID
		}
	}

	if err := s.issues.Update(ctx, is); err != nil {
		return View{}, err
	}

	if assignee == nil {
		assignee, err = s.optionalUser(ctx, is.AssignedTo)
		if err != nil {
			return View{}, err
		}
	}
	return s.view(is, caller, assignee), nil
}

// Delete removes an issue. Creator only.
func (s *Service) Delete(ctx context.Context, callerID, issueID string) error {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return err
	}
	is, _, err := s.findVisible(ctx, caller, issueID)
	if err != nil {
		return err
	}
	if !CanMutate(caller, is) {
		return ErrForbidden
	}
	return s.issues.Delete(ctx, is.ID)
}

// Assignees lists the caller's organization members for assignment.
func (s *Service) Assignees(ctx context.Context, callerID string) ([]Participant, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	users, err := s.users.ListByOrganization(ctx, caller.Organization)
	if err != nil {
		return nil, err
	}
	out := make([]Participant, 0, len(users))
	for _, u := range users {
		out = append(out, participant(u))
	}
	return out, nil
}

// Stats summarizes the caller's organization issues: counts by status
// and priority plus the most recently updated entries.
func (s *Service) Stats(ctx context.Context, callerID string) (Stats, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return Stats{}, err
	}
	members, byID, err := s.orgMembers(ctx, caller.Organization)
	if err != nil {
		return Stats{}, err
	}

	byStatus, err := s.issues.StatusCounts(ctx, members)
	if err != nil {
		return Stats{}, err
	}
	byPriority, err := s.issues.PriorityCounts(ctx, members)
	if err != nil {
		return Stats{}, err
	}
	recent, err := s.issues.RecentByCreators(ctx, members, recentLimit)
	if err != nil {
		return Stats{}, err
	}

	views := make([]View, 0, len(recent))
	for _, is := range recent {
		v, err := s.viewResolving(ctx, is, byID)
		if err != nil {
			return Stats{}, err
		}
		views = append(views, v)
	}
	return Stats{ByStatus: byStatus, ByPriority: byPriority, Recent: views}, nil
}

// caller resolves the authenticated subject to a full user record.
func (s *Service) caller(ctx context.Context, callerID string) (*auth.User, error) {
	return s.users.Find(ctx, callerID)
}

// findVisible loads an issue and applies the visibility rule. A
// cross-organization issue reads as ErrNotFound so its existence is
// never confirmed.
func (s *Service) findVisible(ctx context.Context, caller *auth.User, issueID string) (*Issue, *auth.User, error) {
	is, err := s.issues.Find(ctx, issueID)
	if err != nil {
		return nil, nil, err
	}
	creator, err := s.users.Find(ctx, is.CreatedBy)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	if !CanView(caller, creator) {
		return nil, nil, ErrNotFound
	}
	return is, creator, nil
}

// resolveAssignee validates that the assignment target exists inside
// the caller's organization.
func (s *Service) resolveAssignee(ctx context.Context, caller *auth.User, assigneeID string) (*auth.User, error) {
	assignee, err := s.users.Find(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, fmt.Errorf("%w: assignee not in your organization", ErrInvalidInput)
		}
		return nil, err
	}
	if assignee.Organization != caller.Organization {
		return nil, fmt.Errorf("%w: assignee not in your organization", ErrInvalidInput)
	}
	return assignee, nil
}

func (s *Service) orgMembers(ctx context.Context, organization string) ([]string, map[string]*auth.User, error) {
	users, err := s.users.ListByOrganization(ctx, organization)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, 0, len(users))
	byID := make(map[string]*auth.User, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
		byID[u.ID] = u
	}
	return ids, byID, nil
}

func (s *Service) optionalUser(ctx context.Context, id string) (*auth.User, error) {
	if id == "" {
		return nil, nil
	}
	u, err := s.users.Find(ctx, id)
	if errors.Is(err, auth.ErrNotFound) {
		// Assignee account removed out-of-band; render as unassigned.
		return nil, nil
	}
	return u, err
}

// viewResolving builds a view using the preloaded organization member
// map, falling back to a lookup for accounts that changed
// organization since the issue was written.
func (s *Service) viewResolving(ctx context.Context, is *Issue, byID map[string]*auth.User) (View, error) {
	creator, ok := byID[is.CreatedBy]
	if !ok {
		var err error
		creator, err = s.users.Find(ctx, is.CreatedBy)
		if err != nil {
			return View{}, err
		}
	}
	var assignee *auth.User
	if is.AssignedTo != "" {
		if a, ok := byID[is.AssignedTo]; ok {
			assignee = a
		} else {
			var err error
			assignee, err = s.optionalUser(ctx, is.AssignedTo)
			if err != nil {
				return View{}, err
			}
		}
	}
	return s.view(is, creator, assignee), nil
}

func (s *Service) view(is *Issue, creator, assignee *auth.User) View {
	v := View{
		ID:          is.ID,
		Title:       is.Title,
		Description: is.Description,
		Status:      is.Status,
		Priority:    is.Priority,
		CreatedBy:   participant(creator),
		CreatedAt:   is.CreatedAt,
		UpdatedAt:   is.UpdatedAt,
	}
	if is.Label != "" {
		label := is.Label
		v.Label = &label
	}
	if assignee != nil {
		p := participant(assignee)
		v.AssignedTo = &p
	}
	return v
}

func participant(u *auth.User) Participant {
	return Participant{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Organization: u.Organization,
	}
}

func normalizeFilter(f *Filter) error {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		return fmt.Errorf("%w: limit must be at most %d", ErrInvalidInput, maxPageLimit)
	}
	switch f.Sort {
	case "":
		f.Sort = SortNewest
	case SortNewest, SortOldest:
	default:
		return fmt.Errorf("%w: sort must be %s or %s", ErrInvalidInput, SortNewest, SortOldest)
	}
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, f.Priority)
	}
	f.Label = strings.TrimSpace(f.Label)
	f.Query = strings.TrimSpace(f.Query)
	return nil
}

func validateTitle(title string) error {
	if len(title) < minTitleLength || len(title) > maxTitleLength {
		return fmt.Errorf("%w: title must be %d-%d characters", ErrInvalidInput, minTitleLength, maxTitleLength)
	}
	return nil
}

func validateDescription(description string) error {
	if len(description) < minDescriptionLength || len(description) > maxDescriptionLength {
		return fmt.Errorf("%w: description must be %d-%d characters", ErrInvalidInput, minDescriptionLength, maxDescriptionLength)
	}
	return nil
}

func validateLabel(label string) error {
	if label == "" || len(label) > maxLabelLength {
		return fmt.Errorf("%w: label must be 1-%d characters", ErrInvalidInput, maxLabelLength)
	}
	return nil
}
