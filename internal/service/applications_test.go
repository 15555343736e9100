package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"guildstats/internal/models"
)

type mockApplicationRepository struct {
	mock.Mock
}

func (m *mockApplicationRepository) SaveApplication(ctx context.Context, app *models.Application) (int64, error) {
	args := m.Called(ctx, app)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockApplicationRepository) LastApplicationAt(ctx context.Context, userID string) (*time.Time, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *mockApplicationRepository) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}

func (m *mockApplicationRepository) PendingApplications(ctx context.Context) ([]models.Application, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Application), args.Error(1)
}

func (m *mockApplicationRepository) UpdateApplicationStatus(ctx context.Context, id int64, status models.ApplicationStatus, reviewerID string, notes *string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, status, reviewerID, notes, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockApplicationRepository) AddApplicationEvent(ctx context.Context, userID, action string, details *string, at time.Time) error {
	args := m.Called(ctx, userID, action, details, at)
	return args.Error(0)
}

func (m *mockApplicationRepository) ApplicationHistory(ctx context.Context, userID string) ([]models.ApplicationEvent, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.ApplicationEvent), args.Error(1)
}

// validAnswers fills every question of a step with an acceptable answer.
func validAnswers(step Step) map[string]string {
	out := make(map[string]string, len(step.Questions))
	for _, q := range step.Questions {
		if q.NumberRange != nil {
			out[q.ID] = "21"
			continue
		}
		out[q.ID] = strings.Repeat("x", q.MinLength+5)
	}
	return out
}

func newApplications(repo ApplicationRepository, clock *fakeClock) *Applications {
	return NewApplications(repo, 24*time.Hour, 5*time.Minute, clock.Now, zap.NewNop())
}

func TestApplications_Start(t *testing.T) {
	clock := newFakeClock(t0)
	recent := t0.Add(-2 * time.Hour)
	old := t0.Add(-48 * time.Hour)

	tests := []struct {
		name      string
		open      bool
		mockSetup func(*mockApplicationRepository)
		check     func(*testing.T, error)
	}{
		{
			name: "Closed",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrApplicationsClosed)
			},
		},
		{
			name: "Cooldown",
			open: true,
			mockSetup: func(repo *mockApplicationRepository) {
				repo.On("LastApplicationAt", mock.Anything, "u1").Return(&recent, nil)
			},
			check: func(t *testing.T, err error) {
				var cd *CooldownError
				require.ErrorAs(t, err, &cd)
				assert.Equal(t, 22*time.Hour, cd.Remaining)
			},
		},
		{
			name: "Old application",
			open: true,
			mockSetup: func(repo *mockApplicationRepository) {
				repo.On("LastApplicationAt", mock.Anything, "u1").Return(&old, nil)
			},
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "First application",
			open: true,
			mockSetup: func(repo *mockApplicationRepository) {
				repo.On("LastApplicationAt", mock.Anything, "u1").Return(nil, nil)
			},
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockApplicationRepository{}
			if tt.mockSetup != nil {
				tt.mockSetup(repo)
			}
			apps := newApplications(repo, clock)
			apps.SetOpen(tt.open)

			_, err := apps.Start(context.Background(), "u1", "user#0001", "user")
			tt.check(t, err)
			repo.AssertExpectations(t)
		})
	}
}

func TestApplications_FullFlow(t *testing.T) {
	clock := newFakeClock(t0)
	repo := &mockApplicationRepository{}
	apps := newApplications(repo, clock)
	apps.SetOpen(true)
	ctx := context.Background()

	repo.On("LastApplicationAt", mock.Anything, "u1").Return(nil, nil)
	repo.On("SaveApplication", mock.Anything, mock.MatchedBy(func(app *models.Application) bool {
		return app.UserID == "u1" && app.Status == models.ApplicationPending && len(app.Answers) == 22
	})).Return(int64(42), nil)
	repo.On("AddApplicationEvent", mock.Anything, "u1", "submitted", mock.Anything, mock.Anything).Return(nil)

	_, err := apps.Start(ctx, "u1", "user#0001", "user")
	require.NoError(t, err)

	_, _, err = apps.SubmitStep(ctx, "u1", 1, validAnswers(ApplicationSteps[1]))
	assert.ErrorIs(t, err, ErrStepOutOfOrder)

	for i, step := range ApplicationSteps {
		cur, ok := apps.CurrentStep("u1")
		require.True(t, ok)
		require.Equal(t, i, cur)

		next, app, err := apps.SubmitStep(ctx, "u1", i, validAnswers(step))
		require.NoError(t, err)
		if i < len(ApplicationSteps)-1 {
			assert.Equal(t, i+1, next)
			assert.Nil(t, app)
			continue
		}
		require.NotNil(t, app)
		assert.Equal(t, int64(42), app.ID)
	}

	_, ok := apps.CurrentStep("u1")
	assert.False(t, ok, "draft is discarded after submission")
	repo.AssertExpectations(t)
}

func TestApplications_StepValidation(t *testing.T) {
	clock := newFakeClock(t0)
	repo := &mockApplicationRepository{}
	repo.On("LastApplicationAt", mock.Anything, "u1").Return(nil, nil)
	apps := newApplications(repo, clock)
	apps.SetOpen(true)
	ctx := context.Background()

	_, err := apps.Start(ctx, "u1", "user#0001", "user")
	require.NoError(t, err)

	answers := validAnswers(ApplicationSteps[0])
	answers["age"] = "7"
	answers["name"] = "<a>"

	_, _, err = apps.SubmitStep(ctx, "u1", 0, answers)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)

	cur, ok := apps.CurrentStep("u1")
	require.True(t, ok)
	assert.Zero(t, cur, "a failed step can be retried")
}

func TestApplications_NoDraft(t *testing.T) {
	apps := newApplications(&mockApplicationRepository{}, newFakeClock(t0))
	_, _, err := apps.SubmitStep(context.Background(), "ghost", 0, nil)
	assert.ErrorIs(t, err, ErrNoDraft)
}

func TestApplications_Decide(t *testing.T) {
	clock := newFakeClock(t0)
	ctx := context.Background()

	t.Run("Approve", func(t *testing.T) {
		repo := &mockApplicationRepository{}
		apps := newApplications(repo, clock)
		repo.On("GetApplication", mock.Anything, int64(7)).
			Return(&models.Application{ID: 7, UserID: "u1", Status: models.ApplicationPending}, nil)
		repo.On("UpdateApplicationStatus", mock.Anything, int64(7), models.ApplicationApproved, "mod", (*string)(nil), t0).
			Return(true, nil)
		repo.On("AddApplicationEvent", mock.Anything, "u1", "approved", mock.Anything, t0).Return(nil)

		app, err := apps.Decide(ctx, 7, "mod", true, "")
		require.NoError(t, err)
		assert.Equal(t, models.ApplicationApproved, app.Status)
		assert.Equal(t, "mod", *app.ReviewedBy)
		repo.AssertExpectations(t)
	})

	t.Run("Already reviewed", func(t *testing.T) {
		repo := &mockApplicationRepository{}
		apps := newApplications(repo, clock)
		repo.On("GetApplication", mock.Anything, int64(8)).
			Return(&models.Application{ID: 8, Status: models.ApplicationRejected}, nil)

		_, err := apps.Decide(ctx, 8, "mod", true, "")
		assert.ErrorIs(t, err, ErrAlreadyReviewed)
	})

	t.Run("Not found", func(t *testing.T) {
		repo := &mockApplicationRepository{}
		apps := newApplications(repo, clock)
		repo.On("GetApplication", mock.Anything, int64(9)).Return(nil, nil)

		_, err := apps.Decide(ctx, 9, "mod", false, "")
		assert.ErrorIs(t, err, ErrApplicationNotFound)
	})
}

func TestApplications_Application(t *testing.T) {
	repo := &mockApplicationRepository{}
	apps := newApplications(repo, newFakeClock(t0))
	repo.On("GetApplication", mock.Anything, int64(3)).
		Return(&models.Application{ID: 3, UserID: "u1"}, nil)
	repo.On("GetApplication", mock.Anything, int64(4)).Return(nil, nil)

	app, err := apps.Application(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "u1", app.UserID)

	_, err = apps.Application(context.Background(), 4)
	assert.ErrorIs(t, err, ErrApplicationNotFound)
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "hello world", SanitizeInput("  <hello>\n\t \"world\" "))
	assert.Len(t, []rune(SanitizeInput(strings.Repeat("ş", 2000))), maxFieldLength)
}
