// Package handler provides the HTTP handlers of the gohuifu merchant service.
//
// Handlers bridge the HTTP layer with the huifu gateway service; they never
// sign or classify anything themselves.
//
// # Core Handlers
//
//   - OperationHandler: runs gateway operations (payments, splits, refunds, queries)
//   - CallbackHandler: verifies gateway notifications and answers success or fail
//   - LogsHandler: reads the exchange journal and OpenSearch aggregations
//   - HealthHandler: reports journal, gateway and system health
//
// # Operation Handler
//
//	operationHandler := handler.NewOperationHandler(service, validator.New())
//
//	r.Get("/v1/operations", operationHandler.ListOperations)
//	r.Post("/v1/operations/{operation}", operationHandler.Execute)
//	r.Post("/v1/payments/mini-app", operationHandler.MiniAppPay)
//	r.Get("/v1/orders/{orderDate}/{orderNo}", operationHandler.QueryOrder)
//
// The generic route takes a JSON object and hands it to the service in
// document order:
//
//	POST /v1/operations/balance
//	Authorization: Bearer your-api-key
//	Content-Type: application/json
//
//	{"huifu_id": "6666000123456789"}
//
// # Callbacks
//
// Notifications are public and answered with a bare text body:
//
//	callbackHandler := handler.NewCallbackHandler(provider.NewCallbackHandler("huifu", verifier, recorder))
//	callbackHandler.On("payment", markPaid)
//	r.Post("/callback/{event}", callbackHandler.Handle)
//
// A rejected signature answers 400 "fail" so the gateway retries the
// notification. A verified notification always answers 200, with "fail"
// when the business hook did not acknowledge it.
//
// # HTTP Status Codes
//
//   - 200 OK: operation completed
//   - 202 Accepted: gateway accepted the operation, result pending
//   - 400 Bad Request: invalid request or parameter validation error
//   - 401 Unauthorized: missing or invalid API key
//   - 404 Not Found: unknown operation
//   - 502 Bad Gateway: the gateway answered with a failure code
//   - 504 Gateway Timeout: the gateway could not be reached
package handler
