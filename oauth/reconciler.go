package oauth

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserStore interface {
	ByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type LinkStore interface {
	ByProviderProfile(ctx context.Context, provider, providerProfileID string) (*models.LinkedAccount, error)
	Create(ctx context.Context, link *models.LinkedAccount) error
}

// Reconciler maps a provider profile onto a local user, linking or creating
// idempotently. Nothing is written until the profile carries an email.
type Reconciler struct {
	users       UserStore
	links       LinkStore
	adminEmails map[string]struct{}
	logger      *zap.Logger
}

func NewReconciler(users UserStore, links LinkStore, adminEmails []string, logger *zap.Logger) *Reconciler {
	allow := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		allow[strings.ToLower(email)] = struct{}{}
	}
	return &Reconciler{
		users:       users,
		links:       links,
		adminEmails: allow,
		logger:      logger,
	}
}

// Reconcile resolves the profile to a user. Reconciling the same external
// identity twice never creates a second local user: the (provider,
// providerUserId) uniqueness constraint serializes concurrent attempts, and
// a lost insert race is retried as a read of the existing link.
func (r *Reconciler) Reconcile(ctx context.Context, providerName string, profile *Profile, token *Token) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" {
		return nil, utils.ErrProviderEmailMissing
	}

	user, err := r.users.ByEmail(ctx, email)
	if errors.Is(err, utils.ErrNotFound) {
		user, err = r.createUser(ctx, email, profile.DisplayName)
	}
	if err != nil {
		return nil, err
	}

	if err := r.ensureLink(ctx, providerName, profile.ProviderUserID, user.ID, token); err != nil {
		return nil, err
	}
	return user, nil
}

// createUser provisions a provider-only account: the email is trusted as
// verified and no password credential is minted. The existing-user path
// never touches password or role.
func (r *Reconciler) createUser(ctx context.Context, email, displayName string) (*models.User, error) {
	role := models.RoleUser
	if _, ok := r.adminEmails[email]; ok {
		role = models.RoleSuperAdmin
	}
	first, last := splitDisplayName(displayName)
	user := &models.User{
		PublicID:      uuid.NewString(),
		Email:         email,
		FirstName:     first,
		LastName:      last,
		Role:          role,
		EmailVerified: true,
	}
	err := r.users.Create(ctx, user)
	if errors.Is(err, utils.ErrConflict) {
		// A concurrent signup won the insert; adopt its row.
		return r.users.ByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	r.logger.Info("provisioned user from provider profile", zap.String("userId", user.PublicID))
	return user, nil
}

// ensureLink attaches the external identity to the user exactly once. A link
// held by a different user is a conflict, never silently rebound.
func (r *Reconciler) ensureLink(ctx context.Context, provider, providerProfileID string, userID uint, token *Token) error {
	link, err := r.links.ByProviderProfile(ctx, provider, providerProfileID)
	if err == nil {
		if link.UserID != userID {
			return utils.ErrLinkConflict
		}
		return nil
	}
	if !errors.Is(err, utils.ErrNotFound) {
		return err
	}

	fresh := &models.LinkedAccount{
		UserID:            userID,
		Provider:          provider,
		ProviderProfileID: providerProfileID,
	}
	if token != nil {
		fresh.AccessToken = token.AccessToken
		fresh.RefreshToken = token.RefreshToken
	}
	err = r.links.Create(ctx, fresh)
	if errors.Is(err, utils.ErrConflict) {
		link, err = r.links.ByProviderProfile(ctx, provider, providerProfileID)
		if err != nil {
			return err
		}
		if link.UserID != userID {
			return utils.ErrLinkConflict
		}
		return nil
	}
	return err
}

func splitDisplayName(displayName string) (string, string) {
	fields := strings.Fields(displayName)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
