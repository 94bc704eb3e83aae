// checkoutctl is a CLI tool for driving checkout sessions by hand.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	checkoutctl cart -user ID -product ID -price CENTS [-qty N] [-grams G]
//	checkoutctl start -user ID
//	checkoutctl get -id <session-id>
//	checkoutctl address -id <session-id> [-cep CEP] [-autofill]
//	checkoutctl quote -id <session-id>
//	checkoutctl ship -id <session-id> -option ID
//	checkoutctl coupon -id <session-id> [-code CODE | -remove]
//	checkoutctl pay -id <session-id> -method instant|card|voucher
//	checkoutctl next|back -id <session-id>
//	checkoutctl finalize -id <session-id> [-key TOKEN]
//	checkoutctl abandon -id <session-id>
//	checkoutctl cep -code CEP
//
// Examples:
//
//	checkoutctl cart -user buyer-1 -product cafe-cerrado -price 4235 -qty 2
//	ID=$(checkoutctl start -user buyer-1 -q)
//	checkoutctl next -id $ID
//	checkoutctl address -id $ID -autofill
//	checkoutctl next -id $ID && checkoutctl quote -id $ID
//	checkoutctl ship -id $ID -option express
//	checkoutctl next -id $ID && checkoutctl pay -id $ID -method instant
//	checkoutctl next -id $ID && checkoutctl finalize -id $ID
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"coffee-checkout/internal/backend"
	"coffee-checkout/internal/model"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorBlue, colorCyan, colorGray, colorBold = "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "cart":
		runCart(args)
	case "start":
		runStart(args)
	case "get":
		runGet(args)
	case "address":
		runAddress(args)
	case "quote":
		runQuote(args)
	case "ship":
		runShip(args)
	case "coupon":
		runCoupon(args)
	case "pay":
		runPay(args)
	case "next":
		runStep(args, "next", "/advance")
	case "back":
		runStep(args, "back", "/back")
	case "finalize":
		runFinalize(args)
	case "abandon":
		runAbandon(args)
	case "cep":
		runCEP(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `checkoutctl - checkout wizard test tool

Usage:
  checkoutctl <command> [options]

Commands:
  cart      Store the buyer's cart ahead of checkout
  start     Open a checkout session from the buyer's cart
  get       Show the current wizard state
  address   Submit the shipping address
  quote     Request shipping quotes
  ship      Select a shipping option
  coupon    Apply or remove a coupon
  pay       Select a payment method
  next      Advance to the next step
  back      Return to the previous step
  finalize  Charge and place the order
  abandon   Drop the session
  cep       Look up a postal code

Examples:
  # Put a bag of coffee in the cart, then open a session and capture its ID
  checkoutctl cart -user buyer-1 -product cafe-cerrado -price 4235 -qty 2
  ID=$(checkoutctl start -user buyer-1 -q)

  # Fill the address from the CEP
  checkoutctl address -id "$ID" -cep 01310-100 -autofill

  # Pay by instant transfer and place the order
  checkoutctl pay -id "$ID" -method instant
  checkoutctl finalize -id "$ID"

Run 'checkoutctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags every command shares.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", envOr("CHECKOUT_URL", "http://localhost:8080"), "Checkout service base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the key result")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: checkoutctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args and exits with usage when a required flag is empty.
func parse(fs *flag.FlagSet, args []string, required ...*string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
	for _, r := range required {
		if *r == "" {
			fs.Usage()
			os.Exit(1)
		}
	}
}

func sessionPath(id string, suffix string) string {
	return "/checkout/sessions/" + url.PathEscape(id) + suffix
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func runCart(args []string) {
	fs := newFlagSet("cart", "cart -user ID -product ID -price CENTS [options]")
	var userID, productID, name string
	var price int64
	var qty, grams int
	fs.StringVar(&userID, "user", "", "User whose cart is stored (required)")
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.StringVar(&name, "name", "", "Product name (default: product ID)")
	fs.Int64Var(&price, "price", 0, "Unit price in cents")
	fs.IntVar(&qty, "qty", 1, "Quantity")
	fs.IntVar(&grams, "grams", 250, "Weight per unit in grams")
	parse(fs, args, &userID, &productID)
	if name == "" {
		name = productID
	}

	line := model.CartLine{ProductID: productID, Name: name, UnitPrice: price, Quantity: qty, WeightGrams: grams}
	resp, _ := mustRequest("PUT", "/carts/"+url.PathEscape(userID),
		map[string]interface{}{"lines": []model.CartLine{line}}, nil, "Failed to store cart")
	if quiet {
		fmt.Println(formatCents(resp["subtotal"]))
		return
	}
	printSuccess("Cart stored for %s", userID)
	fmt.Printf("  Subtotal: %s\n", formatCents(resp["subtotal"]))
}

func runStart(args []string) {
	fs := newFlagSet("start", "start -user ID [options]")
	var userID string
	fs.StringVar(&userID, "user", "", "Authenticated user ID (required)")
	parse(fs, args, &userID)

	resp, _ := mustRequest("POST", "/checkout/sessions", map[string]interface{}{"user_id": userID}, nil, "Failed to start checkout")

	id, _ := resp["id"].(string)
	if quiet {
		fmt.Println(id)
		return
	}
	printSuccess("Checkout started")
	fmt.Printf("  ID: %s%s%s\n", colorCyan, id, colorReset)
	printState(resp)
}

func runGet(args []string) {
	fs := newFlagSet("get", "get -id <session-id> [options]")
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parse(fs, args, &id)

	resp, _ := mustRequest("GET", sessionPath(id, ""), nil, nil, "Failed to get checkout")
	if quiet {
		fmt.Println(str(resp["step"]))
		return
	}
	printSuccess("Checkout retrieved")
	printState(resp)
}

func runStep(args []string, name, suffix string) {
	fs := newFlagSet(name, name+" -id <session-id> [options]")
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parse(fs, args, &id)

	resp, _ := mustRequest("POST", sessionPath(id, suffix), nil, nil, "Failed to move wizard")
	if quiet {
		fmt.Println(str(resp["step"]))
		return
	}
	printSuccess("Now at %s", str(resp["step"]))
	printState(resp)
}

func runAbandon(args []string) {
	fs := newFlagSet("abandon", "abandon -id <session-id> [options]")
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parse(fs, args, &id)

	mustRequest("DELETE", sessionPath(id, ""), nil, nil, "Failed to abandon checkout")
	printSuccess("Checkout abandoned")
}

// =============================================================================
// ADDRESS COMMANDS
// =============================================================================

func runAddress(args []string) {
	fs := newFlagSet("address", "address -id <session-id> [options]")
	var id string
	var autofill bool
	addr := map[string]interface{}{}
	fields := []struct{ key, def, help string }{
		{"name", "Maria Silva", "Recipient name"},
		{"email", "maria@example.com", "Email"},
		{"phone", "(11) 98765-4321", "Phone with area code"},
		{"tax_id", "529.982.247-25", "CPF"},
		{"postal_code", "01310-100", "CEP"},
		{"street", "Avenida Paulista", "Street"},
		{"number", "1578", "Street number"},
		{"complement", "", "Complement"},
		{"district", "Bela Vista", "District"},
		{"city", "São Paulo", "City"},
		{"state", "SP", "State (UF)"},
	}
	values := make(map[string]*string, len(fields))
	for _, f := range fields {
		values[f.key] = fs.String(strings.ReplaceAll(f.key, "_", "-"), f.def, f.help)
	}
	fs.StringVar(values["postal_code"], "cep", "01310-100", "CEP (alias of -postal-code)")
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.BoolVar(&autofill, "autofill", false, "Fill street, district, city and state from the CEP")
	parse(fs, args, &id)

	for k, v := range values {
		addr[k] = *v
	}
	if autofill {
		for _, k := range []string{"street", "district", "city", "state"} {
			addr[k] = ""
		}
		addr["autofill"] = true
	}

	resp, _ := mustRequest("PUT", sessionPath(id, "/address"), addr, nil, "Failed to submit address")
	if quiet {
		fmt.Println(str(resp["step"]))
		return
	}
	printSuccess("Address saved")
	if a, ok := resp["address"].(map[string]interface{}); ok {
		fmt.Printf("  %s, %s - %s, %s/%s %s\n",
			str(a["street"]), str(a["number"]), str(a["district"]), str(a["city"]), str(a["state"]), str(a["postal_code"]))
	}
}

func runCEP(args []string) {
	fs := newFlagSet("cep", "cep -code CEP [options]")
	var code string
	fs.StringVar(&code, "code", "", "Postal code (required)")
	parse(fs, args, &code)

	resp, _ := mustRequest("GET", "/postal-codes/"+url.PathEscape(code), nil, nil, "Lookup failed")
	if quiet {
		fmt.Println(str(resp["city"]))
		return
	}
	printSuccess("CEP %s", str(resp["postal_code"]))
	fmt.Printf("  %s - %s, %s/%s\n", str(resp["street"]), str(resp["district"]), str(resp["city"]), str(resp["state"]))
}

// =============================================================================
// SHIPPING COMMANDS
// =============================================================================

func runQuote(args []string) {
	fs := newFlagSet("quote", "quote -id <session-id> [options]")
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parse(fs, args, &id)

	resp, _ := mustRequest("POST", sessionPath(id, "/shipping/quotes"), nil, nil, "Failed to quote shipping")
	options, _ := resp["shipping_options"].([]interface{})
	if quiet {
		for _, opt := range options {
			if m, ok := opt.(map[string]interface{}); ok {
				fmt.Println(str(m["id"]))
			}
		}
		return
	}
	printSuccess("%d shipping options", len(options))
	if fb, _ := resp["quotes_fallback"].(bool); fb {
		printWarning("Rate provider unavailable, showing fallback rates (%s)", str(resp["fallback_version"]))
	}
	printOptions(options)
}

func runShip(args []string) {
	fs := newFlagSet("ship", "ship -id <session-id> -option ID [options]")
	var id, option string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&option, "option", "", "Shipping option ID (required)")
	parse(fs, args, &id, &option)

	resp, _ := mustRequest("PUT", sessionPath(id, "/shipping"), map[string]interface{}{"option_id": option}, nil, "Failed to select shipping")
	if quiet {
		fmt.Println(formatCents(total(resp)))
		return
	}
	printSuccess("Shipping selected: %s", option)
	printTotals(resp)
}

// =============================================================================
// COUPON COMMAND
// =============================================================================

func runCoupon(args []string) {
	fs := newFlagSet("coupon", "coupon -id <session-id> (-code CODE | -remove) [options]")
	var id, code string
	var remove bool
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&code, "code", "", "Coupon code")
	fs.BoolVar(&remove, "remove", false, "Remove the applied coupon")
	parse(fs, args, &id)

	if code == "" && !remove {
		fmt.Fprintf(os.Stderr, "Error: -code or -remove required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	var resp map[string]interface{}
	if remove {
		resp, _ = mustRequest("DELETE", sessionPath(id, "/coupon"), nil, nil, "Failed to remove coupon")
	} else {
		resp, _ = mustRequest("POST", sessionPath(id, "/coupon"), map[string]interface{}{"code": code}, nil, "Coupon not applied")
	}
	if quiet {
		fmt.Println(formatCents(total(resp)))
		return
	}
	if remove {
		printSuccess("Coupon removed")
	} else {
		printSuccess("Coupon %s applied", strings.ToUpper(code))
	}
	printTotals(resp)
}

// =============================================================================
// PAYMENT COMMANDS
// =============================================================================

func runPay(args []string) {
	fs := newFlagSet("pay", "pay -id <session-id> -method instant|card|voucher [options]")
	var id, method, taxID, pan, holder, expiry, cvv string
	var installments int
	var debit bool
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&method, "method", "", "Payment method: instant, card, voucher (required)")
	fs.StringVar(&taxID, "tax-id", "", "Payer CPF (instant and voucher)")
	fs.StringVar(&pan, "pan", "4111 1111 1111 1111", "Card number")
	fs.StringVar(&holder, "holder", "MARIA SILVA", "Card holder name")
	fs.StringVar(&expiry, "expiry", "12/30", "Card expiry MM/YY")
	fs.StringVar(&cvv, "cvv", "123", "Card security code")
	fs.IntVar(&installments, "installments", 1, "Card installments")
	fs.BoolVar(&debit, "debit", false, "Debit card")
	parse(fs, args, &id, &method)

	body := map[string]interface{}{"method": method}
	if taxID != "" {
		body["tax_id"] = taxID
	}
	if method == "card" || method == "credit_card" || method == "debit_card" {
		body["card"] = map[string]interface{}{
			"pan":          pan,
			"holder_name":  holder,
			"expiry":       expiry,
			"cvv":          cvv,
			"installments": installments,
			"debit":        debit,
		}
	}

	resp, _ := mustRequest("PUT", sessionPath(id, "/payment"), body, nil, "Failed to select payment")
	if quiet {
		fmt.Println(str(resp["payment_method"]))
		return
	}
	printSuccess("Payment: %s", str(resp["payment_summary"]))
	printTotals(resp)
}

func runFinalize(args []string) {
	fs := newFlagSet("finalize", "finalize -id <session-id> [-key TOKEN] [options]")
	var id, key string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&key, "key", "", "Idempotency key (the session token)")
	parse(fs, args, &id)

	var headers http.Header
	if key != "" {
		k, err := backend.FormatIdempotencyKey(key)
		if err != nil {
			fatal("Invalid key: %v", err)
		}
		headers = http.Header{backend.IdempotencyHeader: []string{k}}
	}

	resp, respHeader := mustRequest("POST", sessionPath(id, "/finalize"), nil, headers, "Checkout not completed")

	order, _ := resp["order"].(map[string]interface{})
	orderID := str(order["id"])
	if quiet {
		fmt.Println(orderID)
		return
	}
	if replayed, _ := resp["replayed"].(bool); replayed || backend.IsReplayed(respHeader.Values(backend.ReplayedHeader)) {
		printWarning("Order already placed, returning the original")
	} else {
		printSuccess("Order placed!")
	}
	fmt.Printf("  Order ID: %s%s%s\n", colorGreen, orderID, colorReset)
	if totals, ok := order["totals"].(map[string]interface{}); ok {
		fmt.Printf("  Total: %s%s%s\n", colorGreen, formatCents(totals["final_total"]), colorReset)
	}
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// mustRequest performs the request or exits with the service's error.
func mustRequest(method, path string, body interface{}, headers http.Header, failMsg string) (map[string]interface{}, http.Header) {
	resp, h, err := doRequest(method, path, body, headers)
	if err != nil {
		fatal("%s: %v", failMsg, err)
	}
	return resp, h
}

func doRequest(method, path string, body interface{}, headers http.Header) (map[string]interface{}, http.Header, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(serverURL, "/")+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header[k] = v
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return nil, nil, apiError(resp.StatusCode, respBody)
	}

	result := map[string]interface{}{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, nil, fmt.Errorf("parsing response: %w", err)
		}
	}

	return result, resp.Header, nil
}

// apiError renders the service's error envelope, falling back to the raw body.
func apiError(status int, body []byte) error {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Field   string `json:"field"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Code == "" {
		return fmt.Errorf("HTTP %d: %s", status, string(body))
	}
	if env.Error.Field != "" {
		return fmt.Errorf("%s: %s (field %s)", env.Error.Code, env.Error.Message, env.Error.Field)
	}
	return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printState(resp map[string]interface{}) {
	fmt.Printf("  Step: %s%s%s\n", colorCyan, str(resp["step"]), colorReset)
	if lines, ok := resp["lines"].([]interface{}); ok {
		fmt.Printf("  %sItems:%s\n", colorYellow, colorReset)
		for _, l := range lines {
			if m, ok := l.(map[string]interface{}); ok {
				qty, _ := m["quantity"].(float64)
				fmt.Printf("    - %s x%d (%s)\n", str(m["name"]), int(qty), formatCents(m["unit_price"]))
			}
		}
	}
	if options, ok := resp["shipping_options"].([]interface{}); ok && len(options) > 0 {
		printOptions(options)
	}
	if summary := str(resp["payment_summary"]); summary != "" {
		fmt.Printf("  Payment: %s\n", summary)
	}
	if e, ok := resp["last_error"].(map[string]interface{}); ok {
		printError("%s: %s", str(e["code"]), str(e["message"]))
	}
	printTotals(resp)
}

func printOptions(options []interface{}) {
	fmt.Printf("  %sShipping options:%s\n", colorYellow, colorReset)
	for _, opt := range options {
		if m, ok := opt.(map[string]interface{}); ok {
			days, _ := m["eta_business_days"].(float64)
			fmt.Printf("    - %s: %s %s (%d business days)\n",
				str(m["id"]), str(m["display_name"]), formatCents(m["price"]), int(days))
		}
	}
}

func printTotals(resp map[string]interface{}) {
	totals, ok := resp["totals"].(map[string]interface{})
	if !ok {
		return
	}
	fmt.Printf("  Subtotal: %s  Shipping: %s  Discount: %s\n",
		formatCents(totals["subtotal"]), formatCents(totals["shipping_total"]), formatCents(totals["discount_total"]))
	fmt.Printf("  Total: %s%s%s\n", colorGreen, formatCents(totals["final_total"]), colorReset)
	if instant, ok := resp["instant_price"].(float64); ok && instant > 0 && instant != totals["final_total"] {
		fmt.Printf("  Instant transfer: %s%s%s\n", colorBlue, formatCents(instant), colorReset)
	}
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	if len(body) > 0 {
		printJSON(body, "  ")
	}
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}

	output := pretty.String()
	if !verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > 30 {
			lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s", prefix, colorGray, len(lines)-25, colorReset))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Println(output)
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func total(resp map[string]interface{}) interface{} {
	if totals, ok := resp["totals"].(map[string]interface{}); ok {
		return totals["final_total"]
	}
	return nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

// formatCents renders cents as reais, e.g. R$ 84,70.
func formatCents(v interface{}) string {
	var cents int64
	switch val := v.(type) {
	case float64:
		cents = int64(val)
	case int64:
		cents = val
	case int:
		cents = int64(val)
	default:
		return fmt.Sprintf("%v", v)
	}
	return model.FormatBRL(cents)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
