package password

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

// fast keeps the tests quick; production hashes use DefaultParams.
var fast = Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashFormat(t *testing.T) {
	h, err := Hash("inspirer-auth")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=19456,t=2,p=1$") {
		t.Errorf("want default argon2id PHC prefix, got %s", h)
	}
	parts := strings.Split(h, "$")
	if len(parts[4]) != 22 || len(parts[5]) != 43 {
		t.Errorf("want 16 byte salt and 32 byte hash, got %q and %q", parts[4], parts[5])
	}
	if err := Verify("inspirer-auth", h); err != nil {
		t.Errorf("want default hash to verify, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	h, err := HashWithParams("hunter2", fast)
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		Name     string
		Password string
		Hash     string
		Want     error
	}{
		{Name: "match", Password: "hunter2", Hash: h},
		{Name: "mismatch", Password: "hunter3", Hash: h, Want: ErrMismatch},
		{Name: "empty", Password: "", Hash: h, Want: ErrMismatch},
		{Name: "not phc", Password: "hunter2", Hash: "hunter2", Want: ErrInvalidHash},
		{Name: "bcrypt", Password: "hunter2", Hash: "$2a$10$abcdefghijklmnopqrstuv", Want: ErrInvalidHash},
		{Name: "argon2i", Password: "hunter2", Hash: strings.Replace(h, "argon2id", "argon2i", 1), Want: ErrInvalidHash},
		{Name: "bad version", Password: "hunter2", Hash: strings.Replace(h, "v=19", "v=16", 1), Want: ErrInvalidHash},
		{Name: "bad params", Password: "hunter2", Hash: strings.Replace(h, "m=64", "m=x", 1), Want: ErrInvalidHash},
		{Name: "zero params", Password: "hunter2", Hash: strings.Replace(h, "t=1", "t=0", 1), Want: ErrInvalidHash},
		{Name: "bad salt", Password: "hunter2", Hash: "$argon2id$v=19$m=64,t=1,p=1$!!!$aGFzaA", Want: ErrInvalidHash},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			err := Verify(tc.Password, tc.Hash)
			if errors.Cause(err) != tc.Want {
				t.Errorf("want %v, got %v", tc.Want, err)
			}
		})
	}
}

func TestHashIsSalted(t *testing.T) {
	a, _ := HashWithParams("same", fast)
	b, _ := HashWithParams("same", fast)
	if a == b {
		t.Error("want distinct hashes for the same password")
	}
}
