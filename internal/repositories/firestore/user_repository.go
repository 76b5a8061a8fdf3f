package firestore

import (
	"context"
	"errors"
	"strings"

	firestorev1 "cloud.google.com/go/firestore"

	"github.com/orchidmarket/api/internal/domain"
	platform "github.com/orchidmarket/api/internal/platform/firestore"
	"github.com/orchidmarket/api/internal/repositories"
)

const (
	usersCollection = "users"

	// emailSearchLimit caps staff e-mail searches; the account system owns
	// the collection and it can be large.
	emailSearchLimit = 50
)

type userDocument struct {
	Email      string `firestore:"email,omitempty"`
	EmailLower string `firestore:"emailLower,omitempty"`
	Name       string `firestore:"name,omitempty"`
}

type userRepository struct {
	base *platform.BaseRepository[userDocument]
}

var _ repositories.UserRepository = (*userRepository)(nil)

// NewUserRepository constructs the read-only view over the account system's
// user profiles.
func NewUserRepository(provider *platform.Provider) (repositories.UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository: firestore provider is required")
	}
	return &userRepository{
		base: platform.NewBaseRepository[userDocument](provider, usersCollection, nil, nil),
	}, nil
}

func (r *userRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return fromUserDocument(doc.ID, doc.Data), nil
}

// FindByEmail performs a prefix match on the lowercased e-mail field.
// Firestore has no substring operator, so "contains" narrows to "starts
// with" here.
func (r *userRepository) FindByEmail(ctx context.Context, emailTerm string) ([]domain.UserProfile, error) {
	term := strings.ToLower(strings.TrimSpace(emailTerm))
	if term == "" {
		return nil, nil
	}

	docs, err := r.base.Query(ctx, func(q firestorev1.Query) firestorev1.Query {
		return q.
			Where("emailLower", ">=", term).
			Where("emailLower", "<", term+"\uf8ff").
			Limit(emailSearchLimit)
	})
	if err != nil {
		return nil, err
	}

	profiles := make([]domain.UserProfile, 0, len(docs))
	for _, doc := range docs {
		profiles = append(profiles, fromUserDocument(doc.ID, doc.Data))
	}
	return profiles, nil
}

func fromUserDocument(id string, doc userDocument) domain.UserProfile {
	return domain.UserProfile{
		ID:    id,
		Email: doc.Email,
		Name:  doc.Name,
	}
}
