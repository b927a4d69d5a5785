package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/identity-service/internal/models"
	"github.com/pribylovaa/identity-service/internal/storage"
)

func TestRequestPasswordReset_OK(t *testing.T) {
	t.Parallel()

	svc, st, nt, ctrl := newSvc(t)
	defer ctrl.Finish()

	acc := confirmedAccount(t, "user@example.com", "Abcdef1!")

	st.EXPECT().AccountByEmail(gomock.Any(), acc.Email).Return(acc, nil)
	st.EXPECT().SetResetToken(gomock.Any(), acc.ID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, token string, expiresAt time.Time) error {
			require.NotEmpty(t, token)
			require.WithinDuration(t, time.Now().Add(svc.cfg.ResetTokenTTL), expiresAt, 2*time.Second)
			return nil
		})

	require.NoError(t, svc.RequestPasswordReset(context.Background(), acc.Email))
	require.Len(t, nt.resets, 1)
}

func TestRequestPasswordReset_UnknownEmail_SilentSuccess(t *testing.T) {
	t.Parallel()

	svc, st, nt, ctrl := newSvc(t)
	defer ctrl.Finish()

	// SetResetToken не ожидается: несуществующий email не отличим от существующего.
	st.EXPECT().AccountByEmail(gomock.Any(), "ghost@example.com").Return(nil, storage.ErrNotFound)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "ghost@example.com"))
	require.Empty(t, nt.resets)
}

func TestResetPassword_OK_RevokesSession(t *testing.T) {
	t.Parallel()

	svc, st, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	id := uuid.New()
	token := uuid.NewString()
	expires := time.Now().UTC().Add(time.Minute)
	refreshHash := "active-session-hash"

	gomock.InOrder(
		st.EXPECT().SessionByResetToken(gomock.Any(), token).
			Return(&models.SessionRecord{
				AccountID:        id,
				ResetToken:       &token,
				ResetExpiresAt:   &expires,
				RefreshTokenHash: &refreshHash,
			}, nil),
		st.EXPECT().UpdatePasswordHash(gomock.Any(), id, gomock.Any()).Return(nil),
		st.EXPECT().ClearResetToken(gomock.Any(), id).Return(nil),
		st.EXPECT().ClearRefreshToken(gomock.Any(), id).Return(nil),
	)

	require.NoError(t, svc.ResetPassword(context.Background(), token, "NewPass1!"))
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	t.Parallel()

	svc, st, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	id := uuid.New()
	token := uuid.NewString()
	expired := time.Now().UTC().Add(-time.Second)

	st.EXPECT().SessionByResetToken(gomock.Any(), token).
		Return(&models.SessionRecord{AccountID: id, ResetToken: &token, ResetExpiresAt: &expired}, nil)

	err := svc.ResetPassword(context.Background(), token, "NewPass1!")
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestResetPassword_UnknownOrEmptyToken(t *testing.T) {
	t.Parallel()

	svc, st, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	require.ErrorIs(t, svc.ResetPassword(context.Background(), "", "NewPass1!"), ErrInvalidToken)

	st.EXPECT().SessionByResetToken(gomock.Any(), "ghost").Return(nil, storage.ErrNotFound)
	require.ErrorIs(t, svc.ResetPassword(context.Background(), "ghost", "NewPass1!"), ErrInvalidToken)
}

func TestResetPassword_WeakPassword(t *testing.T) {
	t.Parallel()

	svc, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	err := svc.ResetPassword(context.Background(), uuid.NewString(), "weak")
	require.ErrorIs(t, err, ErrWeakPassword)
}
