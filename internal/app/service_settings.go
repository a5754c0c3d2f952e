package app

import (
	"context"
	"encoding/json"
	"strings"

	"praxis/api/internal/hierarchy"
	"praxis/api/internal/mirror"
	"praxis/api/internal/money"
	"praxis/api/internal/store"
	"praxis/api/internal/util"
)

func parseRate(s string) (money.Cents, error) {
	rate, err := money.Parse(s)
	if err != nil || rate < 0 {
		return 0, errValidation("hourlyRate must be a non-negative decimal amount", nil)
	}
	return rate, nil
}

// fallbackRoles backs the role dropdown when no hierarchy is configured.
var fallbackRoles = []string{"admin", "attorney", "paralegal", "staff", "client"}

func (s *Service) Me(ctx context.Context, session Session) (store.User, error) {
	return s.currentUser(ctx, session)
}

// UpdatePreferences merges the given keys into the stored preference map.
// A null value removes the key, restoring its default.
func (s *Service) UpdatePreferences(ctx context.Context, session Session, prefs map[string]any) (store.User, error) {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.User{}, err
	}
	merged := make(map[string]any, len(user.Preferences)+len(prefs))
	for k, v := range user.Preferences {
		merged[k] = v
	}
	for k, v := range prefs {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	if err := s.store.UpdateUserPreferences(ctx, session.UserID, merged); err != nil {
		return store.User{}, err
	}
	return s.store.GetUserByID(ctx, session.UserID)
}

func (s *Service) ListUsers(ctx context.Context, session Session) ([]store.User, error) {
	return s.store.ListUsers(ctx)
}

type UserUpdateInput struct {
	DisplayName string  `json:"displayName"`
	Phone       string  `json:"phone"`
	AccountType string  `json:"accountType"`
	HourlyRate  *string `json:"hourlyRate"`
	IsActive    *bool   `json:"isActive"`
}

func (s *Service) UpdateUser(ctx context.Context, session Session, userID string, input UserUpdateInput) (store.User, error) {
	if userID != session.UserID && !session.IsAdmin() {
		return store.User{}, errForbidden("you can only edit your own account")
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, err
	}
	if name := strings.TrimSpace(input.DisplayName); name != "" {
		user.DisplayName = name
	}
	user.Phone = strings.TrimSpace(input.Phone)
	if input.AccountType != "" || input.IsActive != nil || input.HourlyRate != nil {
		// Role, rate, and activation changes are admin-only even on
		// your own account.
		if !session.IsAdmin() {
			return store.User{}, errForbidden("only administrators can change roles, rates, or activation")
		}
		if input.AccountType != "" {
			user.AccountType = hierarchy.Normalize(input.AccountType)
		}
		if input.IsActive != nil {
			user.IsActive = *input.IsActive
		}
		if input.HourlyRate != nil {
			rate, err := parseRate(*input.HourlyRate)
			if err != nil {
				return store.User{}, err
			}
			user.HourlyRate = rate
		}
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return store.User{}, err
	}
	s.mirrorUpsert(mirror.RecordUser, mirror.Record{
		ID:     user.ID,
		Title:  user.DisplayName,
		Body:   user.Email,
		Status: user.AccountType,
	})
	s.recordActivity(ctx, session, "user.updated", "user", user.ID, user.DisplayName)
	return s.store.GetUserByID(ctx, userID)
}

// --- Role hierarchy ---

func (s *Service) GetHierarchy(ctx context.Context) ([]*hierarchy.Node, error) {
	return s.roles.Forest(ctx)
}

// SaveHierarchy replaces the active role forest wholesale: the new snapshot
// becomes active and prior snapshots are kept for audit only.
func (s *Service) SaveHierarchy(ctx context.Context, session Session, treeJSON json.RawMessage) ([]*hierarchy.Node, error) {
	if !session.IsAdmin() {
		return nil, errForbidden("only administrators can edit the role hierarchy")
	}
	var forest []*hierarchy.Node
	if err := json.Unmarshal(treeJSON, &forest); err != nil {
		return nil, errValidation("hierarchy must be a JSON array of nodes", nil)
	}
	if err := validateForest(forest); err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(forest)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveHierarchySnapshot(ctx, store.HierarchySnapshot{
		ID:        util.NewID("hier"),
		TreeJSON:  string(normalized),
		IsActive:  true,
		CreatedBy: session.UserID,
	}); err != nil {
		return nil, err
	}
	s.roles.Replace(forest)
	s.recordActivity(ctx, session, "hierarchy.replaced", "hierarchy", "", "")
	return forest, nil
}

func validateForest(forest []*hierarchy.Node) error {
	seen := make(map[string]struct{})
	var walk func(n *hierarchy.Node, depth int) error
	walk = func(n *hierarchy.Node, depth int) error {
		if depth > 10 {
			return errValidation("hierarchy is nested too deep", nil)
		}
		if n == nil || strings.TrimSpace(n.Title) == "" {
			return errValidation("every hierarchy node needs a title", nil)
		}
		slug := n.Slug()
		if _, dup := seen[slug]; dup {
			return errValidation("duplicate role in hierarchy", map[string]any{"role": slug})
		}
		seen[slug] = struct{}{}
		for _, child := range n.Children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range forest {
		if err := walk(root, 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) RoleOptions(ctx context.Context) ([]hierarchy.Option, error) {
	forest, err := s.roles.Forest(ctx)
	if err != nil {
		return nil, err
	}
	return hierarchy.RoleOptions(forest, fallbackRoles), nil
}

func (s *Service) ListHierarchySnapshots(ctx context.Context, session Session, limit int) ([]store.HierarchySnapshot, error) {
	if !session.IsAdmin() {
		return nil, errForbidden("only administrators can view hierarchy history")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.store.ListHierarchySnapshots(ctx, limit)
}

// --- Notifications ---

func (s *Service) ListNotifications(ctx context.Context, session Session, unreadOnly bool, limit int) ([]store.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListNotifications(ctx, session.UserID, unreadOnly, limit)
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	return s.store.MarkNotificationRead(ctx, session.UserID, notificationID)
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, session Session) error {
	return s.store.MarkAllNotificationsRead(ctx, session.UserID)
}

// --- Activity log ---

func (s *Service) ListActivity(ctx context.Context, session Session, limit int) ([]store.ActivityLogEntry, error) {
	if !session.IsAdmin() {
		return nil, errForbidden("only administrators can view the activity log")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListActivity(ctx, limit)
}

// --- Search ---

// Search queries the document-store mirror. The mirror is optional and
// eventually consistent; when it is down the endpoint degrades instead of
// failing the request pipeline.
func (s *Service) Search(ctx context.Context, session Session, text, filterType string, limit int) ([]mirror.Result, int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, errValidation("q is required", nil)
	}
	if !s.mirror.Healthy() {
		return nil, 0, errUnavailable("SEARCH_UNAVAILABLE", "Search is temporarily unavailable")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	results, total, err := s.mirror.Search(mirror.Query{
		Text:       text,
		FilterType: mirror.RecordType(filterType),
		Limit:      limit,
	})
	if err != nil {
		return nil, 0, errUnavailable("SEARCH_UNAVAILABLE", "Search is temporarily unavailable")
	}
	return results, total, nil
}
