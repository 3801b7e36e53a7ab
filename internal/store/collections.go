package store

import (
	"context"
	"fmt"

	"github.com/joescharf/issuedao/internal/codec"
	"github.com/joescharf/issuedao/internal/models"
)

// Typed accessors over the keyed entry collections.

func decodeEntries[T any](entries []Entry, collection Collection) ([]*T, error) {
	out := make([]*T, 0, len(entries))
	for _, e := range entries {
		v := new(T)
		if err := codec.Unmarshal(e.Value, v); err != nil {
			return nil, fmt.Errorf("decode %s entry %d: %w", collection, e.Seq, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func members(ctx context.Context, s Store, key EntryKey) ([]string, error) {
	entries, err := s.ListEntries(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Member)
	}
	return out, nil
}

// --- Organization info ---

// SetInfo stores a metadata value.
func SetInfo(ctx context.Context, s Store, orgID, field, value string) error {
	_, err := s.PutEntry(ctx, OrgKey(orgID, CollectionInfo), field, value)
	return err
}

// Info returns all metadata values.
func Info(ctx context.Context, s Store, orgID string) (map[string]string, error) {
	entries, err := s.ListEntries(ctx, OrgKey(orgID, CollectionInfo))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		var v string
		if err := codec.Unmarshal(e.Value, &v); err != nil {
			return nil, fmt.Errorf("decode info %s: %w", e.Member, err)
		}
		out[e.Member] = v
	}
	return out, nil
}

// --- Council ---

// AddCouncilMember adds p to the council. It reports false when p was already a member.
func AddCouncilMember(ctx context.Context, s Store, orgID string, p models.Principal) (bool, error) {
	return s.PutEntry(ctx, OrgKey(orgID, CollectionCouncil), string(p), string(p))
}

// RemoveCouncilMember removes p. It reports false when p was not a member.
func RemoveCouncilMember(ctx context.Context, s Store, orgID string, p models.Principal) (bool, error) {
	return s.DeleteEntry(ctx, OrgKey(orgID, CollectionCouncil), string(p))
}

// IsCouncilMember reports whether p is on the council.
func IsCouncilMember(ctx context.Context, s Store, orgID string, p models.Principal) (bool, error) {
	return s.HasEntry(ctx, OrgKey(orgID, CollectionCouncil), string(p))
}

// Council lists council members in the order they joined.
func Council(ctx context.Context, s Store, orgID string) ([]models.Principal, error) {
	names, err := members(ctx, s, OrgKey(orgID, CollectionCouncil))
	if err != nil {
		return nil, err
	}
	out := make([]models.Principal, 0, len(names))
	for _, n := range names {
		out = append(out, models.Principal(n))
	}
	return out, nil
}

// --- Categories ---

// SetCategories replaces the category set.
func SetCategories(ctx context.Context, s Store, orgID string, categories []string) error {
	key := OrgKey(orgID, CollectionCategories)
	existing, err := members(ctx, s, key)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if _, err := s.DeleteEntry(ctx, key, c); err != nil {
			return err
		}
	}
	for _, c := range categories {
		if _, err := s.PutEntry(ctx, key, c, c); err != nil {
			return err
		}
	}
	return nil
}

// Categories lists the category set.
func Categories(ctx context.Context, s Store, orgID string) ([]string, error) {
	return members(ctx, s, OrgKey(orgID, CollectionCategories))
}

// --- Likes ---

// AddLike records that p likes the issue. It reports false for a repeat like.
func AddLike(ctx context.Context, s Store, key models.IssueKey, p models.Principal) (bool, error) {
	return s.PutEntry(ctx, IssueEntryKey(key, CollectionLikes), string(p), string(p))
}

// Likes lists principals that liked the issue.
func Likes(ctx context.Context, s Store, key models.IssueKey) ([]models.Principal, error) {
	names, err := members(ctx, s, IssueEntryKey(key, CollectionLikes))
	if err != nil {
		return nil, err
	}
	out := make([]models.Principal, 0, len(names))
	for _, n := range names {
		out = append(out, models.Principal(n))
	}
	return out, nil
}

// --- Applicants ---

// AppendApplicant adds an applicant record and sets its Seq.
func AppendApplicant(ctx context.Context, s Store, key models.IssueKey, a *models.Applicant) error {
	seq, err := s.AppendEntry(ctx, IssueEntryKey(key, CollectionApplicants), string(a.Applicant), a)
	if err != nil {
		return err
	}
	a.Seq = seq
	return nil
}

// UpdateApplicant rewrites the record at a.Seq.
func UpdateApplicant(ctx context.Context, s Store, key models.IssueKey, a *models.Applicant) error {
	return s.ReplaceEntry(ctx, IssueEntryKey(key, CollectionApplicants), a.Seq, a)
}

// Applicants lists applicant records in application order.
func Applicants(ctx context.Context, s Store, key models.IssueKey) ([]*models.Applicant, error) {
	entries, err := s.ListEntries(ctx, IssueEntryKey(key, CollectionApplicants))
	if err != nil {
		return nil, err
	}
	out, err := decodeEntries[models.Applicant](entries, CollectionApplicants)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		out[i].Seq = e.Seq
	}
	return out, nil
}

// --- Funds ---

// AppendFund adds a fund record.
func AppendFund(ctx context.Context, s Store, key models.IssueKey, f *models.Fund) error {
	_, err := s.AppendEntry(ctx, IssueEntryKey(key, CollectionFunds), string(f.Funder), f)
	return err
}

// Funds lists fund records in contribution order.
func Funds(ctx context.Context, s Store, key models.IssueKey) ([]*models.Fund, error) {
	entries, err := s.ListEntries(ctx, IssueEntryKey(key, CollectionFunds))
	if err != nil {
		return nil, err
	}
	return decodeEntries[models.Fund](entries, CollectionFunds)
}

// --- Logs ---

// AppendLog adds an audit log record.
func AppendLog(ctx context.Context, s Store, key models.IssueKey, l *models.Log) error {
	_, err := s.AppendEntry(ctx, IssueEntryKey(key, CollectionLogs), string(l.LogType), l)
	return err
}

// Logs lists audit log records oldest first.
func Logs(ctx context.Context, s Store, key models.IssueKey) ([]*models.Log, error) {
	entries, err := s.ListEntries(ctx, IssueEntryKey(key, CollectionLogs))
	if err != nil {
		return nil, err
	}
	return decodeEntries[models.Log](entries, CollectionLogs)
}
