package backend

import (
	"encoding/json"
	"testing"
)

func TestAmountJSON(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{`84.70`, 8470},
		{`84.7`, 8470},
		{`"84.70"`, 8470},
		{`"84,70"`, 8470},
		{`"1.234,56"`, 123456},
		{`94.715`, 9472},
		{`0`, 0},
		{`null`, 0},
	}

	for _, tt := range tests {
		var a Amount
		if err := json.Unmarshal([]byte(tt.in), &a); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.in, err)
			continue
		}
		if a.Cents() != tt.want {
			t.Errorf("Unmarshal(%s) = %d, want %d", tt.in, a.Cents(), tt.want)
		}
	}

	out, err := json.Marshal(struct {
		Total Amount `json:"total"`
	}{Total: 11060})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"total":110.60}` {
		t.Errorf("Marshal = %s", out)
	}
}

func TestAmountRejectsGarbage(t *testing.T) {
	var a Amount
	if err := json.Unmarshal([]byte(`true`), &a); err == nil {
		t.Error("Unmarshal(true) should fail")
	}
}
