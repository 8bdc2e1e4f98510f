package allocation

import "testing"

func TestValidatePairings(t *testing.T) {
	cases := []struct {
		name     string
		quantity uint32
		pairs    []Pairing
		wantErr  bool
	}{
		{"exact match", 2, []Pairing{{1, 10}, {2, 11}}, false},
		{"single", 1, []Pairing{{1, 10}}, false},
		{"empty", 1, nil, true},
		{"too few", 3, []Pairing{{1, 10}, {2, 11}}, true},
		{"too many", 1, []Pairing{{1, 10}, {2, 11}}, true},
		{"duplicate vehicle", 2, []Pairing{{1, 10}, {1, 11}}, true},
		{"duplicate driver", 2, []Pairing{{1, 10}, {2, 10}}, true},
		{"zero vehicle id", 1, []Pairing{{0, 10}}, true},
		{"zero driver id", 1, []Pairing{{1, 0}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePairings(tc.quantity, tc.pairs)
			if tc.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err != nil && err.Code != CodeValidation {
				t.Fatalf("expected %s, got %s", CodeValidation, err.Code)
			}
		})
	}
}
