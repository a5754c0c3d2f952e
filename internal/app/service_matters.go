package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"praxis/api/internal/authz"
	"praxis/api/internal/mirror"
	"praxis/api/internal/notify"
	"praxis/api/internal/store"
	"praxis/api/internal/util"
)

var allowedMatterStatuses = map[string]struct{}{
	"open":    {},
	"closed":  {},
	"on_hold": {},
}

type MatterInput struct {
	Title                 string   `json:"title"`
	MatterNumber          string   `json:"matterNumber"`
	Description           string   `json:"description"`
	Status                string   `json:"status"`
	PracticeArea          string   `json:"practiceArea"`
	ClientID              string   `json:"clientId"`
	ResponsibleAttorneyID string   `json:"responsibleAttorneyId"`
	SharedAttorneyIDs     []string `json:"sharedAttorneyIds"`
}

func (s *Service) CreateMatter(ctx context.Context, session Session, input MatterInput) (store.Matter, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.Matter{}, errValidation("title is required", nil)
	}
	if strings.TrimSpace(input.ClientID) == "" {
		return store.Matter{}, errValidation("clientId is required", nil)
	}
	if _, err := s.store.GetContact(ctx, input.ClientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Matter{}, errValidation("client contact does not exist", nil)
		}
		return store.Matter{}, err
	}
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = "open"
	}
	if _, ok := allowedMatterStatuses[status]; !ok {
		return store.Matter{}, errValidation("unknown matter status", map[string]any{"status": status})
	}
	responsible := strings.TrimSpace(input.ResponsibleAttorneyID)
	if responsible == "" {
		responsible = session.UserID
	}
	now := s.now()
	matter := store.Matter{
		ID:                    util.NewID("mtr"),
		Title:                 strings.TrimSpace(input.Title),
		MatterNumber:          strings.TrimSpace(input.MatterNumber),
		Description:           input.Description,
		Status:                status,
		PracticeArea:          strings.TrimSpace(input.PracticeArea),
		ClientID:              input.ClientID,
		ResponsibleAttorneyID: responsible,
		SharedAttorneyIDs:     dedupe(input.SharedAttorneyIDs),
		OpenedAt:              &now,
		CreatedBy:             session.UserID,
	}
	if err := s.store.CreateMatter(ctx, matter); err != nil {
		return store.Matter{}, err
	}
	s.mirrorUpsert(mirror.RecordMatter, matterRecord(matter))
	s.recordActivity(ctx, session, "matter.created", "matter", matter.ID, matter.Title)
	if responsible != session.UserID {
		s.notifyUser(ctx, responsible, notify.TopicMatterAssigned,
			"New matter: "+matter.Title,
			"You were named responsible attorney on "+matter.Title+".",
			"/matters/"+matter.ID)
	}
	return s.store.GetMatter(ctx, matter.ID)
}

// visibleMatter resolves a matter while hiding its existence from users
// outside the access set.
func (s *Service) visibleMatter(ctx context.Context, user *store.User, matterID string) (store.Matter, error) {
	matter, err := s.store.GetMatter(ctx, matterID)
	if err != nil {
		return store.Matter{}, err
	}
	if !authz.CanViewMatter(user, &matter) {
		return store.Matter{}, errNotFound("matter not found")
	}
	return matter, nil
}

func (s *Service) GetMatter(ctx context.Context, session Session, id string) (store.Matter, error) {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.Matter{}, err
	}
	return s.visibleMatter(ctx, &user, id)
}

func (s *Service) ListMatters(ctx context.Context, session Session) ([]store.Matter, error) {
	return s.store.ListMattersForUser(ctx, session.UserID, session.IsAdmin())
}

func (s *Service) UpdateMatter(ctx context.Context, session Session, id string, input MatterInput) (store.Matter, error) {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.Matter{}, err
	}
	matter, err := s.visibleMatter(ctx, &user, id)
	if err != nil {
		return store.Matter{}, err
	}
	if !authz.CanEditMatter(&user, &matter) {
		return store.Matter{}, errForbidden("you cannot edit this matter")
	}
	previousResponsible := matter.ResponsibleAttorneyID

	if title := strings.TrimSpace(input.Title); title != "" {
		matter.Title = title
	}
	if input.MatterNumber != "" {
		matter.MatterNumber = strings.TrimSpace(input.MatterNumber)
	}
	matter.Description = input.Description
	if input.PracticeArea != "" {
		matter.PracticeArea = strings.TrimSpace(input.PracticeArea)
	}
	if status := strings.TrimSpace(input.Status); status != "" {
		if _, ok := allowedMatterStatuses[status]; !ok {
			return store.Matter{}, errValidation("unknown matter status", map[string]any{"status": status})
		}
		if status == "closed" && matter.Status != "closed" {
			now := s.now()
			matter.ClosedAt = &now
		}
		if status != "closed" {
			matter.ClosedAt = nil
		}
		matter.Status = status
	}
	if responsible := strings.TrimSpace(input.ResponsibleAttorneyID); responsible != "" {
		matter.ResponsibleAttorneyID = responsible
	}
	if input.SharedAttorneyIDs != nil {
		matter.SharedAttorneyIDs = dedupe(input.SharedAttorneyIDs)
	}
	if err := s.store.UpdateMatter(ctx, matter); err != nil {
		return store.Matter{}, err
	}
	s.mirrorUpsert(mirror.RecordMatter, matterRecord(matter))
	s.recordActivity(ctx, session, "matter.updated", "matter", matter.ID, matter.Title)
	if matter.ResponsibleAttorneyID != previousResponsible && matter.ResponsibleAttorneyID != session.UserID {
		s.notifyUser(ctx, matter.ResponsibleAttorneyID, notify.TopicMatterAssigned,
			"Matter reassigned: "+matter.Title,
			"You are now the responsible attorney on "+matter.Title+".",
			"/matters/"+matter.ID)
	}
	return s.store.GetMatter(ctx, id)
}

func (s *Service) DeleteMatter(ctx context.Context, session Session, id string) error {
	if !session.IsAdmin() {
		return errForbidden("only administrators can delete matters")
	}
	if err := s.store.DeleteMatter(ctx, id); err != nil {
		return err
	}
	s.mirrorDelete(mirror.RecordMatter, id)
	s.recordActivity(ctx, session, "matter.deleted", "matter", id, "")
	return nil
}

func matterRecord(m store.Matter) mirror.Record {
	return mirror.Record{
		ID:     m.ID,
		Title:  m.Title,
		Body:   strings.TrimSpace(m.MatterNumber + " " + m.Description),
		Status: m.Status,
		Extra:  map[string]string{"practiceArea": m.PracticeArea},
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
