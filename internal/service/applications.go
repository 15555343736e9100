package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"guildstats/internal/models"
)

var (
	ErrApplicationsClosed  = errors.New("applications are currently closed")
	ErrNoDraft             = errors.New("no application in progress or it timed out")
	ErrStepOutOfOrder      = errors.New("application step submitted out of order")
	ErrApplicationNotFound = errors.New("application not found")
	ErrAlreadyReviewed     = errors.New("application was already reviewed")
)

const (
	maxDrafts      = 1024
	maxFieldLength = 1024
)

// CooldownError is returned when the user applied too recently.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("you already applied recently, try again in %s", e.Remaining.Round(time.Minute))
}

// ValidationError lists every problem found in one submitted step.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

type ApplicationRepository interface {
	SaveApplication(ctx context.Context, app *models.Application) (int64, error)
	LastApplicationAt(ctx context.Context, userID string) (*time.Time, error)
	// GetApplication returns nil without error when the id is unknown.
	GetApplication(ctx context.Context, id int64) (*models.Application, error)
	PendingApplications(ctx context.Context) ([]models.Application, error)
	// UpdateApplicationStatus only touches pending applications and reports whether it did.
	UpdateApplicationStatus(ctx context.Context, id int64, status models.ApplicationStatus, reviewerID string, notes *string, at time.Time) (bool, error)
	AddApplicationEvent(ctx context.Context, userID, action string, details *string, at time.Time) error
	ApplicationHistory(ctx context.Context, userID string) ([]models.ApplicationEvent, error)
}

type Question struct {
	ID          string
	Label       string
	Placeholder string
	MinLength   int
	MaxLength   int
	Long        bool
	// NumberRange, when set, requires an integer answer within [0]..[1].
	NumberRange *[2]int
}

type Step struct {
	Title     string
	Questions []Question
}

// ApplicationSteps are the modal pages of the staff application, in order. Discord
// allows at most five inputs per modal.
var ApplicationSteps = []Step{
	{
		Title: "Staff application (1/5): about you",
		Questions: []Question{
			{ID: "name", Label: "Name or nickname", MinLength: 2, MaxLength: 100},
			{ID: "age", Label: "Age", Placeholder: "e.g. 18", MaxLength: 3, NumberRange: &[2]int{13, 99}},
			{ID: "discord_username", Label: "Discord username", MinLength: 2, MaxLength: 50},
			{ID: "daily_activity", Label: "Daily activity", Placeholder: "e.g. 5-6 hours", MinLength: 2, MaxLength: 50},
			{ID: "active_hours", Label: "Active hours", Placeholder: "e.g. 14:00 - 22:00", MinLength: 2, MaxLength: 100},
		},
	},
	{
		Title: "Staff application (2/5): experience",
		Questions: []Question{
			{ID: "member_since", Label: "How long have you been a member?", MinLength: 2, MaxLength: 100},
			{ID: "previous_experience", Label: "Previous staff experience", MinLength: 10, MaxLength: 1000, Long: true},
			{ID: "moderation_bots", Label: "Moderation bots you know", MinLength: 5, MaxLength: 300},
			{ID: "technical_knowledge", Label: "Technical knowledge", MinLength: 10, MaxLength: 1000, Long: true},
			{ID: "moderation_commands", Label: "Moderation commands you use", MinLength: 5, MaxLength: 500, Long: true},
		},
	},
	{
		Title: "Staff application (3/5): motivation",
		Questions: []Question{
			{ID: "technical_troubleshooting", Label: "A technical problem you solved", MinLength: 10, MaxLength: 1000, Long: true},
			{ID: "motivation", Label: "Why do you want to join the staff?", MinLength: 20, MaxLength: 1000, Long: true},
			{ID: "anime_interest", Label: "Your interest in the community topic", MinLength: 5, MaxLength: 500, Long: true},
			{ID: "good_moderator", Label: "What makes a good moderator?", MinLength: 10, MaxLength: 1000, Long: true},
			{ID: "contribution", Label: "How would you contribute?", MinLength: 10, MaxLength: 1000, Long: true},
		},
	},
	{
		Title: "Staff application (4/5): scenarios",
		Questions: []Question{
			{ID: "conflict_handling", Label: "How do you handle conflicts?", MinLength: 10, MaxLength: 1000, Long: true},
			{ID: "scenario_insult", Label: "A member insults another member", MinLength: 10, MaxLength: 1000, Long: true},
			{ID: "scenario_spoiler", Label: "A member posts spoilers", MinLength: 10, MaxLength: 1000, Long: true},
			{ID: "scenario_dm_insult", Label: "A member insults someone in DMs", MinLength: 10, MaxLength: 1000, Long: true},
			{ID: "scenario_staff_violation", Label: "A staff member breaks the rules", MinLength: 10, MaxLength: 1000, Long: true},
		},
	},
	{
		Title: "Staff application (5/5): extras",
		Questions: []Question{
			{ID: "event_experience", Label: "Event organisation experience", MinLength: 5, MaxLength: 1000, Long: true},
			{ID: "extra_skills", Label: "Other skills", MinLength: 5, MaxLength: 1000, Long: true},
		},
	},
}

// Draft is an application being filled in across several modals.
type Draft struct {
	UserID    string
	UserTag   string
	Username  string
	Step      int
	Answers   map[string]string
	StartedAt time.Time
}

// Applications runs the staff application workflow.
type Applications struct {
	repo     ApplicationRepository
	drafts   *expirable.LRU[string, *Draft]
	mu       sync.Mutex
	open     atomic.Bool
	cooldown time.Duration
	now      Clock
	log      *zap.Logger
}

func NewApplications(repo ApplicationRepository, cooldown, stepTimeout time.Duration, now Clock, log *zap.Logger) *Applications {
	if now == nil {
		now = time.Now
	}
	return &Applications{
		repo:     repo,
		drafts:   expirable.NewLRU[string, *Draft](maxDrafts, nil, stepTimeout),
		cooldown: cooldown,
		now:      now,
		log:      log,
	}
}

func (a *Applications) SetOpen(open bool) {
	a.open.Store(open)
	a.log.Info("Application intake toggled", zap.Bool("open", open))
}

func (a *Applications) IsOpen() bool {
	return a.open.Load()
}

// Start opens a draft for the user and returns the first step.
func (a *Applications) Start(ctx context.Context, userID, userTag, username string) (int, error) {
	if !a.IsOpen() {
		return 0, ErrApplicationsClosed
	}

	last, err := a.repo.LastApplicationAt(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to check last application: %w", err)
	}
	now := a.now()
	if last != nil {
		if elapsed := now.Sub(*last); elapsed < a.cooldown {
			return 0, &CooldownError{Remaining: a.cooldown - elapsed}
		}
	}

	a.mu.Lock()
	a.drafts.Add(userID, &Draft{
		UserID:    userID,
		UserTag:   userTag,
		Username:  username,
		Answers:   make(map[string]string),
		StartedAt: now,
	})
	a.mu.Unlock()

	a.log.Info("Application started", zap.String("user_id", userID))
	return 0, nil
}

// CurrentStep reports which step the user's draft is waiting for.
func (a *Applications) CurrentStep(userID string) (int, bool) {
	d, ok := a.drafts.Peek(userID)
	if !ok {
		return 0, false
	}
	return d.Step, true
}

// SubmitStep records the answers of one step. While steps remain it returns the index
// of the next one; after the last step the application is stored and returned.
func (a *Applications) SubmitStep(ctx context.Context, userID string, step int, answers map[string]string) (int, *models.Application, error) {
	a.mu.Lock()
	draft, ok := a.drafts.Get(userID)
	if !ok {
		a.mu.Unlock()
		return 0, nil, ErrNoDraft
	}
	if step != draft.Step || step >= len(ApplicationSteps) {
		a.mu.Unlock()
		return 0, nil, ErrStepOutOfOrder
	}

	clean := make(map[string]string, len(answers))
	for k, v := range answers {
		clean[k] = SanitizeInput(v)
	}
	if err := ValidateStep(ApplicationSteps[step], clean); err != nil {
		a.mu.Unlock()
		return 0, nil, err
	}

	for k, v := range clean {
		draft.Answers[k] = v
	}
	draft.Step++
	if draft.Step < len(ApplicationSteps) {
		a.drafts.Add(userID, draft)
		a.mu.Unlock()
		return draft.Step, nil, nil
	}
	a.drafts.Remove(userID)
	a.mu.Unlock()

	app := &models.Application{
		UserID:      draft.UserID,
		UserTag:     draft.UserTag,
		Username:    draft.Username,
		Answers:     draft.Answers,
		Status:      models.ApplicationPending,
		SubmittedAt: a.now(),
	}
	id, err := a.repo.SaveApplication(ctx, app)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to save application: %w", err)
	}
	app.ID = id

	a.event(ctx, userID, "submitted", fmt.Sprintf("application #%d submitted", id))
	a.log.Info("Application submitted", zap.String("user_id", userID), zap.Int64("application_id", id))
	return len(ApplicationSteps), app, nil
}

// Decide approves or rejects a pending application.
func (a *Applications) Decide(ctx context.Context, id int64, reviewerID string, approve bool, notes string) (*models.Application, error) {
	app, err := a.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}
	if app.Status != models.ApplicationPending {
		return nil, ErrAlreadyReviewed
	}

	status := models.ApplicationRejected
	if approve {
		status = models.ApplicationApproved
	}
	var notesPtr *string
	if notes = SanitizeInput(notes); notes != "" {
		notesPtr = &notes
	}

	now := a.now()
	updated, err := a.repo.UpdateApplicationStatus(ctx, id, status, reviewerID, notesPtr, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}
	if !updated {
		return nil, ErrAlreadyReviewed
	}

	app.Status = status
	app.ReviewedAt = &now
	app.ReviewedBy = &reviewerID
	app.Notes = notesPtr

	a.event(ctx, app.UserID, string(status), fmt.Sprintf("application #%d %s by %s", id, status, reviewerID))
	a.log.Info("Application reviewed",
		zap.Int64("application_id", id),
		zap.String("status", string(status)),
		zap.String("reviewer_id", reviewerID))
	return app, nil
}

// Application returns one application by id.
func (a *Applications) Application(ctx context.Context, id int64) (*models.Application, error) {
	app, err := a.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}
	return app, nil
}

func (a *Applications) Pending(ctx context.Context) ([]models.Application, error) {
	apps, err := a.repo.PendingApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending applications: %w", err)
	}
	return apps, nil
}

func (a *Applications) History(ctx context.Context, userID string) ([]models.ApplicationEvent, error) {
	events, err := a.repo.ApplicationHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get application history: %w", err)
	}
	return events, nil
}

func (a *Applications) event(ctx context.Context, userID, action, details string) {
	if err := a.repo.AddApplicationEvent(ctx, userID, action, &details, a.now()); err != nil {
		a.log.Warn("Failed to record application history",
			zap.String("user_id", userID),
			zap.String("action", action),
			zap.Error(err))
	}
}

var (
	unsafeChars = regexp.MustCompile(`[<>"'&]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// SanitizeInput strips markup characters, collapses whitespace and caps the length.
func SanitizeInput(s string) string {
	s = unsafeChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	if r := []rune(s); len(r) > maxFieldLength {
		s = string(r[:maxFieldLength])
	}
	return s
}

// ValidateStep checks the answers of one step against its questions.
func ValidateStep(step Step, answers map[string]string) error {
	var problems []string
	for _, q := range step.Questions {
		v := answers[q.ID]
		if q.NumberRange != nil {
			n, err := strconv.Atoi(v)
			if err != nil || n < q.NumberRange[0] || n > q.NumberRange[1] {
				problems = append(problems, fmt.Sprintf("%s must be a number between %d and %d", q.Label, q.NumberRange[0], q.NumberRange[1]))
			}
			continue
		}
		if len([]rune(v)) < q.MinLength {
			problems = append(problems, fmt.Sprintf("%s must be at least %d characters", q.Label, q.MinLength))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
