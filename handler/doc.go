// Package handler holds the HTTP handlers of the gateway.
//
// PaymentHandler exposes the payment operations: BIN query, payment and
// pre-authorization, capture, refund, cancel, status and bank status
// queries. It also serves the two browser facing 3-D endpoints, the auto
// submitting form page and the bank callback. Errors carry the failure kind
// and code in the JSON envelope and map to HTTP statuses:
//
//	VALIDATION                                   400
//	NOT_FOUND                                    404
//	STATE_CONFLICT                               409
//	TERMINAL_UNAVAILABLE, PROVIDER_UNSUPPORTED   422
//	BANK_REJECTED, THREE_D_FAILED, DECRYPT_ERROR 422
//	NETWORK_ERROR                                502
//
// TerminalHandler provisions terminals and commission overrides,
// EventsHandler reads protocol events back from OpenSearch and
// HealthHandler reports store and adapter availability.
package handler
