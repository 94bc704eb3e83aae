// MCP transport handler for the checkout wizard using the official MCP Go SDK.
// Exposes the wizard operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"coffee-checkout/internal/address"
	"coffee-checkout/internal/checkout"
	"coffee-checkout/internal/model"
)

// === MCP Meta Types ===
// meta carries request metadata that maps to HTTP headers.
// - Idempotency-Key header → meta["idempotency-key"]

// MCPMeta represents request metadata in MCP requests.
type MCPMeta struct {
	IdempotencyKey string `json:"idempotency-key,omitempty"`
}

// === MCP Tool Input Types ===
// Tool results are the same JSON bodies the REST API returns. They are
// declared as any so no output schema is derived from the Go types: the
// step travels as its name, not its ordinal.

// StartCheckoutInput is the input schema for start_checkout.
type StartCheckoutInput struct {
	UserID string `json:"user_id" jsonschema:"authenticated user ID"`
}

// SessionInput addresses an existing wizard.
type SessionInput struct {
	ID string `json:"id" jsonschema:"checkout session ID"`
}

// SubmitAddressInput is the input schema for submit_address.
// Street, district, city and state may be left empty when autofill is set.
type SubmitAddressInput struct {
	ID         string `json:"id" jsonschema:"checkout session ID"`
	Name       string `json:"name" jsonschema:"buyer full name"`
	Email      string `json:"email" jsonschema:"buyer email"`
	Phone      string `json:"phone" jsonschema:"buyer phone with area code"`
	TaxID      string `json:"tax_id" jsonschema:"buyer CPF"`
	PostalCode string `json:"postal_code" jsonschema:"CEP, 8 digits"`
	Street     string `json:"street,omitempty"`
	Number     string `json:"number" jsonschema:"street number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty" jsonschema:"two-letter UF"`
	AutoFill   bool   `json:"autofill,omitempty" jsonschema:"fill empty fields from the CEP lookup"`
}

func (in SubmitAddressInput) address() model.ShippingAddress {
	return model.ShippingAddress{
		Name:       in.Name,
		Email:      in.Email,
		Phone:      in.Phone,
		TaxID:      in.TaxID,
		PostalCode: in.PostalCode,
		Street:     in.Street,
		Number:     in.Number,
		Complement: in.Complement,
		District:   in.District,
		City:       in.City,
		State:      in.State,
	}
}

// SelectShippingInput is the input schema for select_shipping.
type SelectShippingInput struct {
	ID       string `json:"id" jsonschema:"checkout session ID"`
	OptionID string `json:"option_id" jsonschema:"ID of a quoted shipping option"`
}

// ApplyCouponInput is the input schema for apply_coupon.
type ApplyCouponInput struct {
	ID   string `json:"id" jsonschema:"checkout session ID"`
	Code string `json:"code" jsonschema:"coupon code"`
}

// SelectPaymentInput is the input schema for select_payment.
type SelectPaymentInput struct {
	ID     string     `json:"id" jsonschema:"checkout session ID"`
	Method string     `json:"method" jsonschema:"instant (PIX), card or voucher (boleto)"`
	TaxID  string     `json:"tax_id,omitempty" jsonschema:"payer CPF"`
	Card   *CardInput `json:"card,omitempty" jsonschema:"card details, required for card"`
}

// CardInput carries card data for select_payment.
type CardInput struct {
	PAN          string `json:"pan" jsonschema:"card number"`
	HolderName   string `json:"holder_name" jsonschema:"name printed on the card"`
	Expiry       string `json:"expiry" jsonschema:"MM/YY"`
	CVV          string `json:"cvv"`
	Installments int    `json:"installments,omitempty" jsonschema:"number of installments, default 1"`
	Debit        bool   `json:"debit,omitempty"`
}

// FinalizeCheckoutInput is the input schema for finalize_checkout.
type FinalizeCheckoutInput struct {
	Meta *MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
	ID   string   `json:"id" jsonschema:"checkout session ID"`
}

// LookupPostalCodeInput is the input schema for lookup_postal_code.
type LookupPostalCodeInput struct {
	PostalCode string `json:"postal_code" jsonschema:"CEP, 8 digits"`
}

// NewMCPServer creates an MCP server with checkout tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "coffee-checkout",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Coffee store checkout wizard. Start a checkout, submit the address, " +
				"quote and select shipping, choose a payment method, then finalize. " +
				"Use advance_step and back_step to move between steps.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_checkout",
		Description: "Open a checkout wizard over the user's current cart.",
	}, h.mcpStartCheckout)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_checkout",
		Description: "Get the current state of a checkout wizard.",
	}, h.mcpGetCheckout)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_address",
		Description: "Submit the buyer and shipping address on the address step.",
	}, h.mcpSubmitAddress)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "quote_shipping",
		Description: "Fetch shipping options for the submitted address.",
	}, h.mcpQuoteShipping)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_shipping",
		Description: "Select one of the quoted shipping options.",
	}, h.mcpSelectShipping)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_coupon",
		Description: "Apply a coupon code to the checkout.",
	}, h.mcpApplyCoupon)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_coupon",
		Description: "Remove the applied coupon.",
	}, h.mcpRemoveCoupon)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_payment",
		Description: "Choose the payment method on the payment step. Nothing is charged until finalize.",
	}, h.mcpSelectPayment)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "advance_step",
		Description: "Move the wizard to the next step once the current one is complete.",
	}, h.mcpAdvanceStep)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "back_step",
		Description: "Move the wizard to the previous step.",
	}, h.mcpBackStep)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "finalize_checkout",
		Description: "Charge the payment and place the order. Safe to repeat: a finished checkout returns its order.",
	}, h.mcpFinalizeCheckout)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "abandon_checkout",
		Description: "Abandon a checkout wizard.",
	}, h.mcpAbandonCheckout)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lookup_postal_code",
		Description: "Look up the street, district, city and state registered for a CEP.",
	}, h.mcpLookupPostalCode)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpStartCheckout(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input StartCheckoutInput,
) (*mcp.CallToolResult, any, error) {
	o, err := h.start(ctx, input.UserID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	id := h.registry.Add(o)
	return nil, viewOf(id, o), nil
}

func (h *Handler) mcpGetCheckout(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, any, error) {
	o, err := h.wizard(input.ID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, viewOf(input.ID, o), nil
}

func (h *Handler) mcpSubmitAddress(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SubmitAddressInput,
) (*mcp.CallToolResult, any, error) {
	return h.mcpMutate(ctx, input.ID, func(o *checkout.Orchestrator) error {
		addr := input.address()
		if input.AutoFill && addr.PostalCode != "" {
			if found := o.LookupPostalCode(ctx, addr.PostalCode); found != nil {
				addr = address.AutoFill(addr, *found)
			}
		}
		return o.SubmitAddress(addr)
	})
}

func (h *Handler) mcpQuoteShipping(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, any, error) {
	return h.mcpMutate(ctx, input.ID, func(o *checkout.Orchestrator) error {
		_, err := o.RequestQuotes(ctx)
		return err
	})
}

func (h *Handler) mcpSelectShipping(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SelectShippingInput,
) (*mcp.CallToolResult, any, error) {
	return h.mcpMutate(ctx, input.ID, func(o *checkout.Orchestrator) error {
		return o.SelectShipping(input.OptionID)
	})
}

func (h *Handler) mcpApplyCoupon(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ApplyCouponInput,
) (*mcp.CallToolResult, any, error) {
	return h.mcpMutate(ctx, input.ID, func(o *checkout.Orchestrator) error {
		_, err := o.ApplyCoupon(ctx, input.Code)
		return err
	})
}

func (h *Handler) mcpRemoveCoupon(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, any, error) {
	return h.mcpMutate(ctx, input.ID, func(o *checkout.Orchestrator) error {
		return o.RemoveCoupon()
	})
}

func (h *Handler) mcpSelectPayment(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SelectPaymentInput,
) (*mcp.CallToolResult, any, error) {
	pr := paymentRequest{Method: input.Method, TaxID: input.TaxID}
	if input.Card != nil {
		pr.Card = &cardRequest{
			PAN:          input.Card.PAN,
			HolderName:   input.Card.HolderName,
			Expiry:       input.Card.Expiry,
			CVV:          input.Card.CVV,
			Installments: input.Card.Installments,
			Debit:        input.Card.Debit,
		}
	}
	sel, err := pr.selection()
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpMutate(ctx, input.ID, func(o *checkout.Orchestrator) error {
		return o.SelectPayment(sel)
	})
}

func (h *Handler) mcpAdvanceStep(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, any, error) {
	return h.mcpMutate(ctx, input.ID, func(o *checkout.Orchestrator) error {
		return o.Advance()
	})
}

func (h *Handler) mcpBackStep(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, any, error) {
	return h.mcpMutate(ctx, input.ID, func(o *checkout.Orchestrator) error {
		return o.Back()
	})
}

func (h *Handler) mcpFinalizeCheckout(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input FinalizeCheckoutInput,
) (*mcp.CallToolResult, any, error) {
	o, err := h.wizard(input.ID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	if input.Meta != nil && input.Meta.IdempotencyKey != "" && input.Meta.IdempotencyKey != o.SessionToken() {
		return nil, nil, h.mcpError(model.NewValidationError("idempotency_key", "does not match this checkout session"))
	}

	order, replayed, err := o.Finalize(ctx)
	if err != nil {
		h.dropIfFatal(ctx, input.ID, err)
		return nil, nil, h.mcpError(err)
	}
	return nil, finalizeResponse{Order: order, Replayed: replayed, Session: viewOf(input.ID, o)}, nil
}

func (h *Handler) mcpAbandonCheckout(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, any, error) {
	o, err := h.wizard(input.ID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	if err := o.Abandon(); err != nil {
		return nil, nil, h.mcpError(err)
	}
	h.registry.Remove(input.ID)
	return nil, viewOf(input.ID, o), nil
}

func (h *Handler) mcpLookupPostalCode(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input LookupPostalCodeInput,
) (*mcp.CallToolResult, any, error) {
	if h.lookup == nil {
		return nil, nil, h.mcpError(model.NewNotFoundError("postal code lookup"))
	}
	found, err := h.lookup.Lookup(ctx, input.PostalCode)
	if errors.Is(err, address.ErrPostalCodeNotFound) {
		return nil, nil, h.mcpError(model.NewNotFoundError("postal code"))
	}
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, found, nil
}

// mcpMutate is the MCP counterpart of mutate.
func (h *Handler) mcpMutate(ctx context.Context, id string, fn func(o *checkout.Orchestrator) error) (*mcp.CallToolResult, any, error) {
	o, err := h.wizard(id)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	if err := fn(o); err != nil {
		h.dropIfFatal(ctx, id, err)
		return nil, nil, h.mcpError(err)
	}
	return nil, viewOf(id, o), nil
}

// mcpError converts orchestrator errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "INTERNAL_ERROR" {
		if apiErr.Field != "" {
			return fmt.Errorf("%s: %s (field %s)", apiErr.Code, apiErr.Message, apiErr.Field)
		}
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
