package identity

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection         = "usersLogin"
	refreshTokensCollection = "refreshTokens"
)

type userDoc struct {
	ID           string    `firestore:"id"`
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"passwordHash"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

type refreshTokenDoc struct {
	UserID    string     `firestore:"userId"`
	TokenHash string     `firestore:"tokenHash"`
	ExpiresAt time.Time  `firestore:"expiresAt"`
	RevokedAt *time.Time `firestore:"revokedAt"`
}

// FirestoreRepository keeps users keyed by email and refresh tokens keyed
// by token id.
type FirestoreRepository struct {
	Client *firestore.Client
	Now    func() time.Time
}

func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	return &FirestoreRepository{
		Client: client,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema is a no-op: collections are created on first write.
func (r *FirestoreRepository) EnsureSchema(ctx context.Context) error { return nil }

func (r *FirestoreRepository) CreateUser(ctx context.Context, user User) error {
	_, err := r.Client.Collection(usersCollection).Doc(user.Email).Create(ctx, userDoc{
		ID:           user.ID,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    r.Now(),
	})
	if status.Code(err) == codes.AlreadyExists {
		return ErrEmailTaken
	}
	return err
}

func (r *FirestoreRepository) FindUserByEmail(ctx context.Context, email string) (User, error) {
	snap, err := r.Client.Collection(usersCollection).Doc(email).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return User{}, err
	}
	return User{ID: doc.ID, Email: doc.Email, PasswordHash: doc.PasswordHash}, nil
}

func (r *FirestoreRepository) FindUserByID(ctx context.Context, userID string) (User, error) {
	iter := r.Client.Collection(usersCollection).Where("id", "==", userID).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return User{}, err
	}
	return User{ID: doc.ID, Email: doc.Email, PasswordHash: doc.PasswordHash}, nil
}

func (r *FirestoreRepository) CreateRefreshToken(ctx context.Context, token RefreshToken) error {
	_, err := r.Client.Collection(refreshTokensCollection).Doc(token.TokenID).Set(ctx, refreshTokenDoc{
		UserID:    token.UserID,
		TokenHash: token.TokenHash,
		ExpiresAt: token.ExpiresAt,
	})
	return err
}

func (r *FirestoreRepository) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (RefreshToken, error) {
	iter := r.Client.Collection(refreshTokensCollection).Where("tokenHash", "==", tokenHash).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return RefreshToken{}, err
	}
	var doc refreshTokenDoc
	if err := snap.DataTo(&doc); err != nil {
		return RefreshToken{}, err
	}
	if doc.RevokedAt != nil || !doc.ExpiresAt.After(r.Now()) {
		return RefreshToken{}, ErrNotFound
	}
	return RefreshToken{
		TokenID:   snap.Ref.ID,
		UserID:    doc.UserID,
		TokenHash: doc.TokenHash,
		ExpiresAt: doc.ExpiresAt,
	}, nil
}

func (r *FirestoreRepository) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	_, err := r.Client.Collection(refreshTokensCollection).Doc(tokenID).Update(ctx, []firestore.Update{
		{Path: "revokedAt", Value: r.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}
