package review

import "testing"

func TestValidateRating(t *testing.T) {
	tests := []struct {
		rating  int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{3, false},
		{5, false},
		{6, true},
		{-1, true},
	}
	for _, tt := range tests {
		err := ValidateRating(tt.rating)
		if (err != nil) != tt.wantErr {
			t.Errorf("rating %d: expected error=%v, got %v", tt.rating, tt.wantErr, err)
		}
	}
}

func TestApply_RejectsInvalidRatingWithoutMutation(t *testing.T) {
	r := &Review{Rating: 4}
	bad := 9
	if err := r.Apply(&UpdateReviewCommand{Rating: &bad}); err != ErrInvalidRating {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	if r.Rating != 4 {
		t.Errorf("expected rating to stay 4, got %d", r.Rating)
	}
}

func TestApply_UpdatesComment(t *testing.T) {
	r := &Review{Rating: 4}
	c := "great"
	if err := r.Apply(&UpdateReviewCommand{Comment: &c}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Comment == nil || *r.Comment != "great" {
		t.Error("expected comment to be set")
	}
}
