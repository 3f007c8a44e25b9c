// Package provider implements the gateway independent engine used to talk to
// a payment gateway: turning loosely typed parameters into typed requests,
// dispatching them, classifying answers and authenticating callbacks.
//
// # Core Concepts
//
//   - Params: an insertion-ordered parameter map, decoded from JSON in document order
//   - RequestKind: one gateway operation with a static table of declared fields
//   - Bind: maps Params onto a Request, routing undeclared keys into an extension bag
//   - Dispatcher: injects defaults, normalizes amounts, binds, sends and classifies
//   - AcceptSet: the response codes treated as success or pending
//   - Verifier: RSA-SHA256 signature check over an ordered list of canonical forms
//   - CallbackHandler: verifies notifications and answers "success" or "fail"
//
// # Basic Usage
//
//	kind := provider.NewRequestKind("balance-query", "V2TradeAcctpaymentBalanceQuery",
//	    "v2/trade/acctpayment/balance/query",
//	    provider.StringField("req_date"),
//	    provider.StringField("huifu_id"),
//	)
//	provider.Register(kind)
//
//	dispatcher := provider.NewDispatcher(cfg, transport)
//	resp, err := dispatcher.Execute(ctx, "balance-query", provider.NewParams())
//	if err != nil {
//	    var apiErr *provider.APIError
//	    if errors.As(err, &apiErr) {
//	        log.Printf("gateway refused: %s %s", apiErr.Code, apiErr.Description)
//	    }
//	    return err
//	}
//	balance, _ := resp.Decimal("acct_bal")
//
// # Errors
//
// Dispatcher.Execute returns one of three error types:
//
//   - *ValidationError: the caller's input was rejected before anything was sent
//   - *TransportError: the gateway could not be reached or answered unreadably at the network level
//   - *APIError: the gateway answered with a code outside the accept-set
//
// # Callbacks
//
// Verification never raises: a notification either verifies against one of
// the candidates built by the strategy list or is rejected.
//
//	handler := provider.NewCallbackHandler("huifu", verifier, nil)
//	ack := handler.Handle(ctx, body, contentType, "sign", "resp_data",
//	    func(ctx context.Context, data map[string]any) (any, error) {
//	        return markPaid(ctx, data["req_seq_id"])
//	    })
//	w.Write([]byte(ack))
package provider
