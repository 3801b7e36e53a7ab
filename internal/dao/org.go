package dao

import (
	"context"

	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/store"
)

// Update replaces the organization metadata. Council only.
func (o *Organization) Update(ctx context.Context, caller models.Principal, p InitParams) error {
	const op = "updateDAO"
	if err := o.engine.validateInit(op, p); err != nil {
		return err
	}

	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		if err := o.requireCouncil(ctx, tx, op, caller); err != nil {
			return err
		}
		fields := map[string]string{
			models.InfoProjectURL:  p.ProjectURL,
			models.InfoLogoURL:     p.LogoURL,
			models.InfoDescription: p.Description,
		}
		for k, v := range fields {
			if err := store.SetInfo(ctx, tx, o.rec.ID, k, v); err != nil {
				return err
			}
		}
		if p.Categories == nil {
			return nil
		}
		return store.SetCategories(ctx, tx, o.rec.ID, p.Categories)
	})
	if err != nil {
		return err
	}

	o.logger.Info("organization updated", "caller", caller)
	return nil
}

// Info returns the organization metadata, categories and council.
func (o *Organization) Info(ctx context.Context) (*models.OrgInfo, error) {
	s := o.engine.store
	fields, err := store.Info(ctx, s, o.rec.ID)
	if err != nil {
		return nil, err
	}
	categories, err := store.Categories(ctx, s, o.rec.ID)
	if err != nil {
		return nil, err
	}
	council, err := store.Council(ctx, s, o.rec.ID)
	if err != nil {
		return nil, err
	}

	return &models.OrgInfo{
		ID:          o.rec.ID,
		Account:     o.rec.Account,
		ProjectURL:  fields[models.InfoProjectURL],
		LogoURL:     fields[models.InfoLogoURL],
		Description: fields[models.InfoDescription],
		CreatedAt:   fields[models.InfoCreatedAt],
		CreatedBy:   fields[models.InfoCreatedBy],
		Categories:  categories,
		Council:     council,
	}, nil
}

// Categories returns the organization's category set.
func (o *Organization) Categories(ctx context.Context) ([]string, error) {
	return store.Categories(ctx, o.engine.store, o.rec.ID)
}

// --- Council ---

// AddCouncilMember adds member to the council. Council only.
func (o *Organization) AddCouncilMember(ctx context.Context, caller, member models.Principal) error {
	const op = "addCouncilMember"
	if err := validatePrincipal(op, "member", member); err != nil {
		return err
	}

	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		if err := o.requireCouncil(ctx, tx, op, caller); err != nil {
			return err
		}
		added, err := store.AddCouncilMember(ctx, tx, o.rec.ID, member)
		if err != nil {
			return err
		}
		if !added {
			return newError(op, CodeAlreadyExists, "%s is already a council member", member)
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.logger.Info("council member added", "member", member, "caller", caller)
	return nil
}

// RemoveCouncilMember removes member from the council. Council only; a
// member cannot remove themselves.
func (o *Organization) RemoveCouncilMember(ctx context.Context, caller, member models.Principal) error {
	const op = "removeCouncilMember"
	if err := validatePrincipal(op, "member", member); err != nil {
		return err
	}

	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		if err := o.requireCouncil(ctx, tx, op, caller); err != nil {
			return err
		}
		if member == caller {
			return newError(op, CodeUnauthorized, "council members cannot remove themselves")
		}
		removed, err := store.RemoveCouncilMember(ctx, tx, o.rec.ID, member)
		if err != nil {
			return err
		}
		if !removed {
			return newError(op, CodeNotFound, "%s is not a council member", member)
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.logger.Info("council member removed", "member", member, "caller", caller)
	return nil
}

// Council lists council members.
func (o *Organization) Council(ctx context.Context) ([]models.Principal, error) {
	return store.Council(ctx, o.engine.store, o.rec.ID)
}

// IsCouncilMember reports whether p sits on the council.
func (o *Organization) IsCouncilMember(ctx context.Context, p models.Principal) (bool, error) {
	return store.IsCouncilMember(ctx, o.engine.store, o.rec.ID, p)
}
