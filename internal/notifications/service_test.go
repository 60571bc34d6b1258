package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gritsync/gritsync-backend/pkg/db/dbtest"
	"github.com/gritsync/gritsync-backend/pkg/db/models"
	"github.com/gritsync/gritsync-backend/pkg/enums"
	pkgerrors "github.com/gritsync/gritsync-backend/pkg/errors"
	paginationpkg "github.com/gritsync/gritsync-backend/pkg/pagination"
)

type fakeRepository struct {
	listFn        func(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error)
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	markAllReadFn func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, notification *models.Notification) error {
	return nil
}

func (f *fakeRepository) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, nil, nil
}

func (f *fakeRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, userID, notificationID, now)
	}
	return notificationMarkResult{}, nil
}

func (f *fakeRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	if f.markAllReadFn != nil {
		return f.markAllReadFn(ctx, userID, now)
	}
	return 0, nil
}

func newServiceWithRepo(repo Repository) Service {
	svc, _ := NewService(repo)
	return svc
}

func TestService_ListNotifications(t *testing.T) {
	first := models.Notification{ID: uuid.New(), CreatedAt: time.Now().Add(-time.Hour)}
	second := models.Notification{ID: uuid.New(), CreatedAt: time.Now()}

	repo := &fakeRepository{
		listFn: func(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error) {
			if params.Limit != 1 {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			return []models.Notification{first}, &paginationpkg.Cursor{CreatedAt: second.CreatedAt, ID: second.ID}, nil
		},
	}

	svc := newServiceWithRepo(repo)
	result, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Limit: 1})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(result.Items))
	}
	if result.Cursor == "" {
		t.Fatal("expected cursor for next page")
	}
	decoded, err := paginationpkg.ParseCursor(result.Cursor)
	if err != nil {
		t.Fatalf("invalid cursor %q: %v", result.Cursor, err)
	}
	if decoded.ID != second.ID {
		t.Fatalf("expected cursor id %s got %s", second.ID, decoded.ID)
	}
}

func TestService_ListNotificationsInvalidCursor(t *testing.T) {
	svc := newServiceWithRepo(&fakeRepository{})
	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "bad"})
	if err == nil {
		t.Fatal("expected error for invalid cursor")
	}
	errCode := pkgerrors.As(err).Code()
	if errCode != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %s", errCode)
	}
}

func TestService_MarkRead(t *testing.T) {
	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
			return notificationMarkResult{Found: true, Updated: true}, nil
		},
	}
	svc := newServiceWithRepo(repo)
	if err := svc.MarkRead(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("unexpected mark read error: %v", err)
	}
}

func TestService_MarkReadNotFound(t *testing.T) {
	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
			return notificationMarkResult{Found: false}, nil
		},
	}
	svc := newServiceWithRepo(repo)
	if err := svc.MarkRead(context.Background(), uuid.New(), uuid.New()); err == nil {
		t.Fatal("expected not found error")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestService_MarkAllRead(t *testing.T) {
	repo := &fakeRepository{
		markAllReadFn: func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
			return 3, nil
		},
	}
	svc := newServiceWithRepo(repo)
	count, err := svc.MarkAllRead(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected mark all read error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 updated rows, got %d", count)
	}
}

func TestService_MarkAllReadError(t *testing.T) {
	repo := &fakeRepository{
		markAllReadFn: func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
			return 0, errors.New("boom")
		},
	}
	svc := newServiceWithRepo(repo)
	if _, err := svc.MarkAllRead(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error")
	}
}

func TestService_CreateValidates(t *testing.T) {
	svc := newServiceWithRepo(&fakeRepository{})
	cases := map[string]CreateInput{
		"missing user":  {Type: enums.NotificationTypePayment, Title: "t", Message: "m"},
		"missing title": {UserID: uuid.New(), Type: enums.NotificationTypePayment, Message: "m"},
		"bad type":      {UserID: uuid.New(), Type: "sms", Title: "t", Message: "m"},
	}
	for name, input := range cases {
		if _, err := svc.Create(context.Background(), nil, input); err == nil {
			t.Fatalf("%s: expected validation error", name)
		} else if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation code, got %v", name, err)
		}
	}
}

func TestRepository_UserScopedReadFlow(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newServiceWithRepo(NewRepository(conn))
	ctx := context.Background()
	owner := uuid.New()
	stranger := uuid.New()
	appID := uuid.New()

	var created []*models.Notification
	for i := 0; i < 3; i++ {
		n, err := svc.Create(ctx, nil, CreateInput{
			UserID:        owner,
			ApplicationID: &appID,
			Type:          enums.NotificationTypePayment,
			Title:         "Payment Successful",
			Message:       "Your payment has been received.",
			Link:          "/applications/" + appID.String() + "/timeline",
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		created = append(created, n)
	}

	if err := svc.MarkRead(ctx, stranger, created[0].ID); pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected other users to get not found, got %v", err)
	}
	if err := svc.MarkRead(ctx, owner, created[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := svc.MarkRead(ctx, owner, created[0].ID); err != nil {
		t.Fatalf("second mark read should be a no-op: %v", err)
	}

	unread, err := svc.List(ctx, ListParams{UserID: owner, UnreadOnly: true})
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread.Items) != 2 {
		t.Fatalf("expected 2 unread, got %d", len(unread.Items))
	}

	var stored models.Notification
	if err := conn.First(&stored, "id = ?", created[0].ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if !stored.Read || stored.ReadAt == nil {
		t.Fatalf("expected read flag and timestamp, got %+v", stored)
	}

	count, err := svc.MarkAllRead(ctx, owner)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows updated, got %d", count)
	}

	others, err := svc.List(ctx, ListParams{UserID: stranger})
	if err != nil {
		t.Fatalf("list stranger: %v", err)
	}
	if len(others.Items) != 0 {
		t.Fatalf("expected no notifications for stranger, got %d", len(others.Items))
	}
}

func TestRepository_ListPaginates(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := uuid.New()
	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		n := &models.Notification{
			ID:        uuid.New(),
			UserID:    owner,
			Type:      enums.NotificationTypePayment,
			Title:     "t",
			Message:   "m",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, next, err := repo.List(ctx, listNotificationsParams{UserID: owner, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || next == nil {
		t.Fatalf("expected 2 rows and a cursor, got %d rows cursor=%v", len(page), next)
	}
	if !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Fatalf("expected newest first")
	}

	rest, after, err := repo.List(ctx, listNotificationsParams{UserID: owner, Limit: 2, Cursor: next})
	if err != nil {
		t.Fatalf("list page two: %v", err)
	}
	if len(rest) != 1 || after != nil {
		t.Fatalf("expected final page of 1, got %d (cursor %v)", len(rest), after)
	}
}
