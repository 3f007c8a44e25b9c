// Package gohuifu is a merchant service for the Huifu (汇付) payment gateway.
// It signs and sends gateway operations, classifies their answers and
// authenticates the asynchronous notifications the gateway posts back.
//
// # Architecture
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Your Apps     │◄──►│    gohuifu      │◄──►│     Huifu       │
//	│                 │    │                 │    │    Gateway      │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// Outbound requests pass through the Dispatcher in package provider:
// defaults are injected, amounts normalized to two decimals, parameters bound
// to the operation's declared fields (everything else travels in
// extend_info), the data object is signed with the merchant key and the
// answer is checked against the accept-set.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/mstgnz/gohuifu/infra/config"
//	    "github.com/mstgnz/gohuifu/provider/huifu"
//	)
//
//	func main() {
//	    cfg, err := config.LoadGateway()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    service, err := huifu.New(cfg)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    balance, err := service.Balance(context.Background(), "")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Printf("balance: %s", balance.StringFixed(2))
//	}
//
// # Configuration
//
// The gateway is configured from the environment (a .env file is loaded by
// cmd when present):
//
//	HUIFU_SYS_ID=6666000123456789
//	HUIFU_PRODUCT_ID=PAYUN
//	HUIFU_MCH_ID=6666000123456789
//	HUIFU_MERCH_PRIVATE_KEY=MIIEvQIBADANBgkqhkiG9w0BAQEFAASC...
//	HUIFU_PUBLIC_KEY=MIIBIjANBgkqhkiG9w0BAQEFAAOCAQ8AMIIB...
//	HUIFU_NOTIFY_URL=https://merchant.example.com/callback/payment
//	HUIFU_SANDBOX=false
//
// # REST API
//
// cmd serves the gateway over HTTP:
//
//	POST /v1/operations/{operation}         # any operation, JSON parameters
//	POST /v1/payments/mini-app              # WeChat mini program order
//	POST /v1/splits                         # confirm a delayed order
//	POST /v1/refunds
//	GET  /v1/orders/{orderDate}/{orderNo}
//	GET  /v1/balance
//	POST /callback/{event}                  # gateway notifications
//	GET  /health
//	GET  /metrics
//
// # Logging
//
// Every exchange and notification is journaled to SQLite and, when
// ENABLE_OPENSEARCH_LOGGING is set, indexed in OpenSearch with card numbers,
// keys and signatures redacted.
package gohuifu
