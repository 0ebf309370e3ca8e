package invite

import (
	"context"
	"testing"

	"github.com/starford/ansuz/internal/kv"
)

func TestCreateValidateDelete(t *testing.T) {
	ctx := context.Background()
	svc := New(kv.NewMemory())

	code, err := svc.Create(ctx, "actor-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(code) != codeLength {
		t.Errorf("code length = %d, want %d", len(code), codeLength)
	}

	actorID, ok, err := svc.Validate(ctx, code)
	if err != nil || !ok {
		t.Fatalf("Validate = %v, %v", ok, err)
	}
	if actorID != "actor-1" {
		t.Errorf("actorID = %q", actorID)
	}

	if err := svc.Delete(ctx, code); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := svc.Validate(ctx, code); ok {
		t.Error("deleted code should not validate")
	}
}

func TestValidate_UnknownCode(t *testing.T) {
	svc := New(kv.NewMemory())
	_, ok, err := svc.Validate(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Error("unknown code should be invalid")
	}
}

func TestGenerateCode_Alphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range code {
			if !((r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
				t.Fatalf("code %q contains %q", code, r)
			}
		}
	}
}
