package brdoc

import "testing"

func TestValidCPF(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid formatted", "529.982.247-25", true},
		{"valid digits only", "52998224725", true},
		{"valid second sample", "111.444.777-35", true},
		{"valid with check digit 0", "123.456.789-09", true},
		{"wrong first check digit", "529.982.247-35", false},
		{"wrong second check digit", "529.982.247-26", false},
		{"too short", "5299822472", false},
		{"too long", "529982247251", false},
		{"empty", "", false},
		{"letters only", "abc.def.ghi-jk", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidCPF(tt.input); got != tt.want {
				t.Errorf("ValidCPF(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestValidCPFRejectsRepeatedDigits covers all eleven-identical-digit ids,
// several of which pass the checksum arithmetic.
func TestValidCPFRejectsRepeatedDigits(t *testing.T) {
	for d := byte('0'); d <= '9'; d++ {
		id := string([]byte{d, d, d, d, d, d, d, d, d, d, d})
		if ValidCPF(id) {
			t.Errorf("ValidCPF(%q) = true, want false", id)
		}
	}
}

func TestValidCEP(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"01310-100", true},
		{"01310100", true},
		{"0131010", false},
		{"00000-000", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidCEP(tt.input); got != tt.want {
			t.Errorf("ValidCEP(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestValidPhone(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"(11) 98765-4321", true},
		{"(11) 3456-7890", true},
		{"11987654321", true},
		{"(11) 88765-4321", false}, // 11 digits must be mobile
		{"(01) 3456-7890", false},
		{"3456-7890", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidPhone(tt.input); got != tt.want {
			t.Errorf("ValidPhone(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestValidUF(t *testing.T) {
	for _, uf := range []string{"SP", "rj", " MG "} {
		if !ValidUF(uf) {
			t.Errorf("ValidUF(%q) = false, want true", uf)
		}
	}
	for _, uf := range []string{"XX", "", "SPA"} {
		if ValidUF(uf) {
			t.Errorf("ValidUF(%q) = true, want false", uf)
		}
	}
}

func TestMasks(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"cpf full", MaskCPF, "52998224725", "529.982.247-25"},
		{"cpf partial", MaskCPF, "5299", "529.9"},
		{"cpf reformat", MaskCPF, "529.982.247-25", "529.982.247-25"},
		{"cpf extra digits dropped", MaskCPF, "5299822472599", "529.982.247-25"},
		{"cep full", MaskCEP, "01310100", "01310-100"},
		{"cep partial", MaskCEP, "013", "013"},
		{"phone landline", MaskPhone, "1134567890", "(11) 3456-7890"},
		{"phone mobile", MaskPhone, "11987654321", "(11) 98765-4321"},
		{"phone partial", MaskPhone, "119", "(11) 9"},
		{"empty", MaskCPF, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("mask(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDigits(t *testing.T) {
	if got := Digits("(11) 98765-4321"); got != "11987654321" {
		t.Errorf("Digits() = %q", got)
	}
	if IsDigits("") || IsDigits("12a") || !IsDigits("0123") {
		t.Error("IsDigits returned unexpected result")
	}
}
