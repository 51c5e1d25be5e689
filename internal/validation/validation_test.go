package validation

import (
	"testing"
)

func TestIntakeRequest_Valid(t *testing.T) {
	v := New()

	req := IntakeRequest{
		Club:  "1552",
		Email: "jane@example.com",
		Name:  "Jane Doe",
	}

	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestIntakeRequest_MissingFields(t *testing.T) {
	v := New()

	req := IntakeRequest{
		// Club and Email missing
		Name: "Jane Doe",
	}

	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation errors for missing required fields, got nil")
	}
}

func TestIntakeRequest_BadEmail(t *testing.T) {
	v := New()

	req := IntakeRequest{Club: "1552", Email: "not-an-email"}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for malformed email, got nil")
	}
}

func TestIntakeRequest_NonNumericClub(t *testing.T) {
	v := New()

	req := IntakeRequest{Club: "club-east", Email: "jane@example.com"}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for non-numeric club, got nil")
	}
}

func TestCreateClientRequest(t *testing.T) {
	v := New()

	ok := CreateClientRequest{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
		Extras:    map[string]string{"MobilePhone": "555-0100"},
	}
	if err := v.Struct(ok); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}

	missing := CreateClientRequest{Email: "jane@example.com"}
	if err := v.Struct(missing); err == nil {
		t.Fatal("expected validation errors for missing names, got nil")
	}
}
