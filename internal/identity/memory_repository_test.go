package identity

import (
	"context"
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestMemoryRepositoryCreateAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, User{
		Email:     strPtr("asha@example.com"),
		Phone:     strPtr("9876543210"),
		FirstName: "Asha",
		Name:      "Asha",
		AuthType:  AuthTypeEmailPassword,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected generated id")
	}
	if created.UserType != UserTypeCustomer {
		t.Fatalf("expected default user type CUSTOMER, got %s", created.UserType)
	}

	byEmail, err := repo.FindByEmail(ctx, "asha@example.com")
	if err != nil || byEmail.ID != created.ID {
		t.Fatalf("find by email: %v %+v", err, byEmail)
	}
	byPhone, err := repo.FindByPhone(ctx, "9876543210")
	if err != nil || byPhone.ID != created.ID {
		t.Fatalf("find by phone: %v %+v", err, byPhone)
	}
	if _, err := repo.FindByID(ctx, created.ID+1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryRejectsDuplicates(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, User{Email: strPtr("a@example.com"), Phone: strPtr("9000000001")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(ctx, User{Email: strPtr("a@example.com")}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := repo.Create(ctx, User{Phone: strPtr("9000000001")}); !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
	// Users without email or phone never collide on the absent field.
	if _, err := repo.Create(ctx, User{Phone: strPtr("9000000002")}); err != nil {
		t.Fatalf("create without email: %v", err)
	}
	if _, err := repo.Create(ctx, User{Phone: strPtr("9000000003")}); err != nil {
		t.Fatalf("second create without email: %v", err)
	}
}

func TestMemoryRepositoryMarkVerified(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, User{Phone: strPtr("9123456789"), AuthType: AuthTypeSMSOTP})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := repo.MarkVerified(ctx, created.ID)
	if err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if !updated.IsVerified {
		t.Fatalf("expected verified user")
	}
	if _, err := repo.MarkVerified(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("Ravi", nil); got != "Ravi" {
		t.Fatalf("got %q", got)
	}
	if got := DisplayName("Ravi", strPtr("")); got != "Ravi" {
		t.Fatalf("got %q", got)
	}
	if got := DisplayName("Ravi", strPtr("Kumar")); got != "Ravi Kumar" {
		t.Fatalf("got %q", got)
	}
}
