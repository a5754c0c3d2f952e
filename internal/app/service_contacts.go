package app

import (
	"context"
	"strings"

	"praxis/api/internal/mirror"
	"praxis/api/internal/store"
	"praxis/api/internal/util"
)

var allowedContactKinds = map[string]struct{}{
	"client":         {},
	"opposing_party": {},
	"witness":        {},
	"expert":         {},
	"other":          {},
}

type ContactInput struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Company     string `json:"company"`
	Address     string `json:"address"`
	Kind        string `json:"kind"`
	Notes       string `json:"notes"`
}

func (input ContactInput) validate() error {
	if strings.TrimSpace(input.DisplayName) == "" {
		return errValidation("displayName is required", nil)
	}
	kind := strings.TrimSpace(input.Kind)
	if kind != "" {
		if _, ok := allowedContactKinds[kind]; !ok {
			return errValidation("unknown contact kind", map[string]any{"kind": kind})
		}
	}
	return nil
}

func (s *Service) CreateContact(ctx context.Context, session Session, input ContactInput) (store.Contact, error) {
	if err := input.validate(); err != nil {
		return store.Contact{}, err
	}
	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		kind = "other"
	}
	contact := store.Contact{
		ID:          util.NewID("cnt"),
		DisplayName: strings.TrimSpace(input.DisplayName),
		Email:       strings.TrimSpace(input.Email),
		Phone:       strings.TrimSpace(input.Phone),
		Company:     strings.TrimSpace(input.Company),
		Address:     strings.TrimSpace(input.Address),
		Kind:        kind,
		Notes:       input.Notes,
		CreatedBy:   session.UserID,
	}
	if err := s.store.CreateContact(ctx, contact); err != nil {
		return store.Contact{}, err
	}
	s.mirrorUpsert(mirror.RecordContact, contactRecord(contact))
	s.recordActivity(ctx, session, "contact.created", "contact", contact.ID, contact.DisplayName)
	return s.store.GetContact(ctx, contact.ID)
}

func (s *Service) GetContact(ctx context.Context, id string) (store.Contact, error) {
	return s.store.GetContact(ctx, id)
}

func (s *Service) ListContacts(ctx context.Context, kind string) ([]store.Contact, error) {
	if kind != "" {
		if _, ok := allowedContactKinds[kind]; !ok {
			return nil, errValidation("unknown contact kind", map[string]any{"kind": kind})
		}
	}
	return s.store.ListContacts(ctx, kind)
}

func (s *Service) UpdateContact(ctx context.Context, session Session, id string, input ContactInput) (store.Contact, error) {
	if err := input.validate(); err != nil {
		return store.Contact{}, err
	}
	contact, err := s.store.GetContact(ctx, id)
	if err != nil {
		return store.Contact{}, err
	}
	contact.DisplayName = strings.TrimSpace(input.DisplayName)
	contact.Email = strings.TrimSpace(input.Email)
	contact.Phone = strings.TrimSpace(input.Phone)
	contact.Company = strings.TrimSpace(input.Company)
	contact.Address = strings.TrimSpace(input.Address)
	if kind := strings.TrimSpace(input.Kind); kind != "" {
		contact.Kind = kind
	}
	contact.Notes = input.Notes
	if err := s.store.UpdateContact(ctx, contact); err != nil {
		return store.Contact{}, err
	}
	s.mirrorUpsert(mirror.RecordContact, contactRecord(contact))
	s.recordActivity(ctx, session, "contact.updated", "contact", contact.ID, contact.DisplayName)
	return s.store.GetContact(ctx, id)
}

func (s *Service) DeleteContact(ctx context.Context, session Session, id string) error {
	if !session.IsAdmin() {
		return errForbidden("only administrators can delete contacts")
	}
	if err := s.store.DeleteContact(ctx, id); err != nil {
		return err
	}
	s.mirrorDelete(mirror.RecordContact, id)
	s.recordActivity(ctx, session, "contact.deleted", "contact", id, "")
	return nil
}

func contactRecord(c store.Contact) mirror.Record {
	return mirror.Record{
		ID:     c.ID,
		Title:  c.DisplayName,
		Body:   strings.TrimSpace(c.Company + " " + c.Email + " " + c.Notes),
		Status: c.Kind,
	}
}
