package address

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"coffee-checkout/internal/model"
)

func validAddress() model.ShippingAddress {
	return model.ShippingAddress{
		Name:       "Maria Silva",
		Email:      "maria@example.com",
		Phone:      "(11) 98765-4321",
		TaxID:      "529.982.247-25",
		PostalCode: "01310-100",
		Street:     "Avenida Paulista",
		Number:     "1000",
		District:   "Bela Vista",
		City:       "São Paulo",
		State:      "SP",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(a *model.ShippingAddress)
		wantField string
	}{
		{"valid", func(a *model.ShippingAddress) {}, ""},
		{"complement optional", func(a *model.ShippingAddress) { a.Complement = "" }, ""},
		{"single short name", func(a *model.ShippingAddress) { a.Name = "Jo" }, "name"},
		{"single long name ok", func(a *model.ShippingAddress) { a.Name = "Madonna" }, ""},
		{"missing email", func(a *model.ShippingAddress) { a.Email = "" }, "email"},
		{"malformed email", func(a *model.ShippingAddress) { a.Email = "maria@" }, "email"},
		{"email with display name", func(a *model.ShippingAddress) { a.Email = "Maria <maria@example.com>" }, "email"},
		{"email without tld", func(a *model.ShippingAddress) { a.Email = "maria@localhost" }, "email"},
		{"bad phone", func(a *model.ShippingAddress) { a.Phone = "1234" }, "phone"},
		{"bad cpf checksum", func(a *model.ShippingAddress) { a.TaxID = "529.982.247-26" }, "tax_id"},
		{"repeated cpf", func(a *model.ShippingAddress) { a.TaxID = "111.111.111-11" }, "tax_id"},
		{"bad cep", func(a *model.ShippingAddress) { a.PostalCode = "0131" }, "postal_code"},
		{"missing street", func(a *model.ShippingAddress) { a.Street = " " }, "street"},
		{"missing number", func(a *model.ShippingAddress) { a.Number = "" }, "number"},
		{"missing district", func(a *model.ShippingAddress) { a.District = "" }, "district"},
		{"missing city", func(a *model.ShippingAddress) { a.City = "" }, "city"},
		{"bad state", func(a *model.ShippingAddress) { a.State = "XX" }, "state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAddress()
			tt.mutate(&a)
			err := Validate(a)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Field != tt.wantField {
				t.Errorf("Validate() error = %v, want field %q", err, tt.wantField)
			}
		})
	}
}

func TestValidateAll(t *testing.T) {
	a := validAddress()
	a.Email = "nope"
	a.TaxID = "000"
	a.City = ""

	errs := ValidateAll(a)
	if len(errs) != 3 {
		t.Fatalf("len(errs) = %d, want 3: %v", len(errs), errs)
	}
	want := []string{"email", "tax_id", "city"}
	for i, f := range want {
		if errs[i].Field != f {
			t.Errorf("errs[%d].Field = %q, want %q", i, errs[i].Field, f)
		}
	}
	if len(ValidateAll(validAddress())) != 0 {
		t.Error("ValidateAll(valid) returned errors")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize(model.ShippingAddress{
		Name:       "  Maria   Silva ",
		Email:      " Maria@Example.COM ",
		Phone:      "11987654321",
		TaxID:      "52998224725",
		PostalCode: "01310100",
		Street:     " Av. Paulista ",
		State:      " sp",
	})
	want := model.ShippingAddress{
		Name:       "Maria Silva",
		Email:      "maria@example.com",
		Phone:      "(11) 98765-4321",
		TaxID:      "529.982.247-25",
		PostalCode: "01310-100",
		Street:     "Av. Paulista",
		State:      "SP",
	}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
	if err := Validate(Normalize(validAddress())); err != nil {
		t.Errorf("Validate(Normalize(valid)) = %v", err)
	}
}

func TestAutoFill(t *testing.T) {
	a := model.ShippingAddress{Street: "Rua já digitada", PostalCode: "01310-100"}
	got := AutoFill(a, model.PostalLookup{
		PostalCode: "01310100",
		Street:     "Avenida Paulista",
		District:   "Bela Vista",
		City:       "São Paulo",
		State:      "SP",
	})
	if got.Street != "Rua já digitada" {
		t.Errorf("Street overwritten: %q", got.Street)
	}
	if got.District != "Bela Vista" || got.City != "São Paulo" || got.State != "SP" {
		t.Errorf("AutoFill() = %+v", got)
	}

	empty := AutoFill(model.ShippingAddress{}, model.PostalLookup{PostalCode: "01310100"})
	if empty.PostalCode != "01310-100" {
		t.Errorf("PostalCode = %q", empty.PostalCode)
	}
}

func TestSamePostalCode(t *testing.T) {
	if !SamePostalCode("01310-100", "01310100") {
		t.Error("formatted and bare CEP should match")
	}
	if SamePostalCode("01310-100", "22041-001") {
		t.Error("different CEPs matched")
	}
}

func newLookup(t *testing.T, h http.HandlerFunc) *LookupClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewLookupClient(LookupOptions{BaseURL: srv.URL})
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"english fields", `{"cep":"01310100","street":"Avenida Paulista","district":"Bela Vista","city":"São Paulo","state":"sp"}`},
		{"portuguese fields", `{"cep":"01310-100","logradouro":"Avenida Paulista","bairro":"Bela Vista","localidade":"São Paulo","uf":"SP"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			c := newLookup(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				jsonReply(http.StatusOK, tt.body)(w, r)
			})

			got, err := c.Lookup(context.Background(), "01310-100")
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if gotPath != "/postal-lookup/01310100" {
				t.Errorf("path = %q", gotPath)
			}
			want := model.PostalLookup{
				PostalCode: "01310-100", Street: "Avenida Paulista",
				District: "Bela Vista", City: "São Paulo", State: "SP",
			}
			if *got != want {
				t.Errorf("Lookup() = %+v, want %+v", *got, want)
			}
		})
	}
}

func TestLookupErrors(t *testing.T) {
	tests := []struct {
		name         string
		h            http.HandlerFunc
		wantNotFound bool
	}{
		{"erro flag", jsonReply(http.StatusOK, `{"erro": true}`), true},
		{"erro string flag", jsonReply(http.StatusOK, `{"erro": "true"}`), true},
		{"404", jsonReply(http.StatusNotFound, `{"error":"CEP não encontrado"}`), true},
		{"error body", jsonReply(http.StatusOK, `{"error":"serviço indisponível"}`), false},
		{"server error", jsonReply(http.StatusBadGateway, `{}`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newLookup(t, tt.h)
			_, err := c.Lookup(context.Background(), "01310100")
			if err == nil {
				t.Fatal("Lookup() expected error")
			}
			if got := errors.Is(err, ErrPostalCodeNotFound); got != tt.wantNotFound {
				t.Errorf("errors.Is(ErrPostalCodeNotFound) = %v, want %v (err = %v)", got, tt.wantNotFound, err)
			}
		})
	}
}

func TestLookupRejectsMalformedCEP(t *testing.T) {
	c := newLookup(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("lookup service must not be called")
	})
	if _, err := c.Lookup(context.Background(), "123"); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("Lookup() error = %v", err)
	}
}
